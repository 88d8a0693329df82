// Package alias builds the immutable alias table consulted by the resolver.
//
// A table maps specifier prefixes ("@", "@/components") to absolute base
// directories. Entries are kept sorted by descending prefix length so the
// first whole-segment match of a forward scan is always the most specific
// alias. Tables are never mutated: a configuration reload builds a new table
// with a higher Version.
package alias

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"modresolve/internal/utils"
)

var versionSeq atomic.Uint64

// Spec is one alias declaration as written in configuration.
type Spec struct {
	Prefix string
	Target string
	// AllowOutside lets Target point outside the project root.
	AllowOutside bool
}

// Config is the input of Build.
type Config struct {
	// RootDir is the project root; relative targets and roots are joined to it.
	RootDir string
	// Roots are extra directories for bare root-relative lookups. Empty means [RootDir].
	Roots   []string
	Aliases []Spec
	// Logger receives validation warnings. nil uses log.Default().
	Logger *log.Logger
}

// Entry is a validated alias.
type Entry struct {
	Prefix       string
	Target       string
	AllowOutside bool
	// Order is the declaration index, used to break length ties.
	Order int
}

// Table is an immutable, versioned alias table.
type Table struct {
	rootDir string
	roots   []string
	entries []Entry
	version uint64
}

// Build validates cfg and returns a new table. Every failure is a *ConfigError.
func Build(cfg Config) (*Table, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	rootDir, err := checkRoot(cfg.RootDir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cfg.Aliases))
	seen := make(map[string]int, len(cfg.Aliases))
	for i, spec := range cfg.Aliases {
		prefix, err := NormalizePrefix(spec.Prefix)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[prefix]; ok {
			return nil, configErrorf(prefix, "duplicate prefix (also declared at position %d)", prev)
		}
		seen[prefix] = i

		target, err := normalizeTarget(prefix, spec.Target)
		if err != nil {
			return nil, err
		}
		target = utils.AbsClean(rootDir, target)
		if !spec.AllowOutside && !utils.HasPathPrefix(target, rootDir) {
			return nil, configErrorf(prefix, "target %s escapes project root %s", target, rootDir)
		}
		entries = append(entries, Entry{
			Prefix:       prefix,
			Target:       target,
			AllowOutside: spec.AllowOutside,
			Order:        i,
		})
	}

	if caseInsensitiveFS(rootDir) {
		warnCaseCollisions(logger, entries)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].Prefix) != len(entries[j].Prefix) {
			return len(entries[i].Prefix) > len(entries[j].Prefix)
		}
		return entries[i].Order < entries[j].Order
	})

	roots := make([]string, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		abs := utils.AbsClean(rootDir, r)
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			logger.Printf("alias: lookup root %s is not a directory; bare imports will not find files there", abs)
		}
		roots = append(roots, abs)
	}
	if len(roots) == 0 {
		roots = []string{rootDir}
	}

	return &Table{
		rootDir: rootDir,
		roots:   roots,
		entries: entries,
		version: versionSeq.Add(1),
	}, nil
}

// Version identifies this table instance. Rebuilt tables get a higher value.
func (t *Table) Version() uint64 { return t.version }

// RootDir is the absolute project root.
func (t *Table) RootDir() string { return t.rootDir }

// Len returns the number of alias entries.
func (t *Table) Len() int { return len(t.entries) }

// Roots returns a copy of the bare-import lookup directories, in priority order.
func (t *Table) Roots() []string {
	return append([]string(nil), t.roots...)
}

// Entries returns a copy of the entries in match order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Match returns the most specific entry whose prefix is a whole-segment
// prefix of spec. It returns ErrAmbiguous when a second entry matches at the
// same prefix length, which Build already rules out.
func (t *Table) Match(spec string) (Entry, bool, error) {
	for i, e := range t.entries {
		if !utils.HasSegmentPrefix(spec, e.Prefix) {
			continue
		}
		for _, other := range t.entries[i+1:] {
			if len(other.Prefix) != len(e.Prefix) {
				break
			}
			if utils.HasSegmentPrefix(spec, other.Prefix) {
				return e, false, ErrAmbiguous
			}
		}
		return e, true, nil
	}
	return Entry{}, false, nil
}

func checkRoot(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", configErrorf("", "root directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &ConfigError{Reason: "root directory: " + err.Error(), Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigError{Reason: "root directory: " + err.Error(), Err: err}
	}
	if !info.IsDir() {
		return "", configErrorf("", "root %s is not a directory", abs)
	}
	return abs, nil
}

// NormalizePrefix returns the form Build stores for an alias prefix: a
// trailing "/*" and trailing slashes are stripped. Prefixes that the
// resolver would treat as relative or absolute paths are rejected, since
// no specifier could ever reach them through the table.
func NormalizePrefix(raw string) (string, error) {
	prefix := strings.TrimSpace(raw)
	if prefix == "" {
		return "", configErrorf(raw, "empty prefix")
	}
	prefix = strings.TrimSuffix(prefix, "/*")
	if strings.Contains(prefix, "*") {
		return "", configErrorf(raw, "wildcards are only allowed as a trailing /* segment")
	}
	prefix = utils.NormalizePrefix(prefix)
	if prefix == "" {
		return "", configErrorf(raw, "empty prefix")
	}
	if strings.HasPrefix(prefix, "/") || filepath.IsAbs(prefix) {
		return "", configErrorf(raw, "prefix must not be an absolute path")
	}
	if utils.IsRelative(prefix) {
		return "", configErrorf(raw, "prefix must not be a relative path")
	}
	return prefix, nil
}

func normalizeTarget(prefix, raw string) (string, error) {
	target := strings.TrimSpace(raw)
	target = strings.TrimSuffix(target, "/*")
	if target == "" {
		return "", configErrorf(prefix, "empty target")
	}
	if strings.Contains(target, "*") {
		return "", configErrorf(prefix, "wildcards are only allowed as a trailing /* segment")
	}
	return target, nil
}

// caseInsensitiveFS reports whether dir can also be reached with its case
// flipped, which is how macOS and Windows default volumes behave.
func caseInsensitiveFS(dir string) bool {
	flipped := flipCase(dir)
	if flipped == dir {
		return false
	}
	a, err := os.Stat(dir)
	if err != nil {
		return false
	}
	b, err := os.Stat(flipped)
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}

func flipCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return r
	}, s)
}

func warnCaseCollisions(logger *log.Logger, entries []Entry) {
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if strings.EqualFold(entries[i].Prefix, entries[j].Prefix) {
				logger.Printf("alias: prefixes %q and %q differ only in case on a case-insensitive filesystem", entries[i].Prefix, entries[j].Prefix)
			}
		}
	}
}
