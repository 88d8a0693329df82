// Package resolver turns import specifiers into absolute module paths.
//
// Relative specifiers are probed against the importer's directory, aliased
// specifiers against the longest matching alias target, and any other bare
// specifier against the table's lookup roots. Probing tries the literal path,
// then each extension in priority order, then index files of a directory.
// Results are memoized per (specifier, importer dir, table version) with at
// most one filesystem probe in flight per key.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"modresolve/internal/alias"
	"modresolve/internal/cache/memory"
	"modresolve/internal/safeio"
	"modresolve/internal/utils"
)

// DefaultExtensions is the probing order used when none is configured.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".json"}

// OutsidePolicy decides what happens when a match lands outside the project root.
type OutsidePolicy string

const (
	OutsideError OutsidePolicy = "error"
	OutsideWarn  OutsidePolicy = "warn"
)

// ParseOutsidePolicy accepts "error" or "warn" (case-insensitive); "" means error.
func ParseOutsidePolicy(s string) (OutsidePolicy, error) {
	switch p := OutsidePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OutsideError, nil
	case OutsideError, OutsideWarn:
		return p, nil
	default:
		return "", fmt.Errorf("resolver: unknown outside-root policy %q", s)
	}
}

type Options struct {
	// Extensions in priority order. Empty uses DefaultExtensions.
	Extensions  []string
	OutsideRoot OutsidePolicy
	Cache       memory.Config
	// FS is probed for candidates. nil uses safeio.OSFS.
	FS     safeio.FS
	Logger *log.Logger
}

// Request is one resolution call. ImporterDir must be absolute.
type Request struct {
	Specifier   string
	ImporterDir string
}

type Resolver struct {
	table   atomic.Pointer[alias.Table]
	cache   *memory.ResultCache[Result]
	fs      safeio.FS
	exts    []string
	outside OutsidePolicy
	log     *log.Logger
}

func New(table *alias.Table, opts Options) (*Resolver, error) {
	if table == nil {
		return nil, errors.New("resolver: alias table is required")
	}
	outside, err := ParseOutsidePolicy(string(opts.OutsideRoot))
	if err != nil {
		return nil, err
	}
	cache, err := memory.NewResultCache[Result](opts.Cache)
	if err != nil {
		return nil, fmt.Errorf("resolver: cache: %w", err)
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = safeio.OSFS{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	r := &Resolver{
		cache:   cache,
		fs:      fsys,
		exts:    NormalizeExtensions(opts.Extensions),
		outside: outside,
		log:     logger,
	}
	r.table.Store(table)
	return r, nil
}

// NormalizeExtensions adds a missing leading dot and drops blanks and
// duplicates, keeping order. An empty result falls back to DefaultExtensions.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	return out
}

// Table returns the table snapshot currently used for new resolutions.
func (r *Resolver) Table() *alias.Table { return r.table.Load() }

// Extensions returns the probing order.
func (r *Resolver) Extensions() []string { return append([]string(nil), r.exts...) }

// CacheMetrics exposes hit/miss/computation counters.
func (r *Resolver) CacheMetrics() memory.MetricsSnapshot { return r.cache.Metrics() }

// Reload publishes a rebuilt table. Results cached for older versions are
// dropped and can no longer be served since keys carry the table version.
func (r *Resolver) Reload(table *alias.Table) error {
	if table == nil {
		return errors.New("resolver: alias table is required")
	}
	prev := r.table.Swap(table)
	r.cache.Purge()
	r.log.Printf("resolver: alias table reloaded (version %d -> %d, %d aliases)", prev.Version(), table.Version(), table.Len())
	return nil
}

// ResolveFile resolves spec as imported from importerFile. A relative
// importerFile is taken relative to the table's root directory.
func (r *Resolver) ResolveFile(ctx context.Context, spec, importerFile string) Result {
	abs := utils.AbsClean(r.Table().RootDir(), importerFile)
	return r.Resolve(ctx, Request{Specifier: spec, ImporterDir: filepath.Dir(abs)})
}

// Resolve never retries; a cancelled ctx only abandons this caller's wait.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	tbl := r.table.Load()
	spec := utils.NormalizeSpecifier(req.Specifier)
	importer := filepath.Clean(req.ImporterDir)
	if spec == "" {
		return unresolved(NotFound, req.Specifier, importer, nil, errors.New("empty specifier"))
	}
	dirOnly := utils.IsDirSpecifier(req.Specifier)
	keySpec := spec
	if dirOnly {
		keySpec += "/"
	}
	key := memory.Key{Specifier: keySpec, ImporterDir: importer, TableVersion: tbl.Version()}
	res, _, err := r.cache.Do(ctx, key, func() (Result, bool) {
		res := r.resolve(tbl, spec, importer, dirOnly)
		// I/O failures may be transient and are never memoized.
		return res, res.Reason() != IOError
	})
	if err != nil {
		return unresolved(IOError, spec, importer, nil, err)
	}
	return res
}

func (r *Resolver) resolve(tbl *alias.Table, spec, importer string, dirOnly bool) Result {
	p := newProbe(r.fs, r.exts, dirOnly)

	switch {
	case utils.IsRelative(spec):
		found, err := p.module(filepath.Join(importer, filepath.FromSlash(spec)))
		return r.finish(tbl, spec, importer, KindRelative, found, nil, p, err)

	case path.IsAbs(spec) || filepath.IsAbs(spec):
		found, err := p.module(filepath.Clean(filepath.FromSlash(spec)))
		return r.finish(tbl, spec, importer, KindAbsolute, found, nil, p, err)
	}

	entry, ok, err := tbl.Match(spec)
	if err != nil {
		return unresolved(AmbiguousAlias, spec, importer, nil, err)
	}
	if ok {
		base := filepath.Join(entry.Target, filepath.FromSlash(utils.Remainder(spec, entry.Prefix)))
		found, err := p.module(base)
		return r.finish(tbl, spec, importer, KindAlias, found, &entry, p, err)
	}

	for _, root := range tbl.Roots() {
		found, err := p.module(filepath.Join(root, filepath.FromSlash(spec)))
		if err != nil || found != "" {
			return r.finish(tbl, spec, importer, KindPackageLookup, found, nil, p, err)
		}
	}
	return unresolved(NotFound, spec, importer, p.tried, nil)
}

func (r *Resolver) finish(tbl *alias.Table, spec, importer string, kind Kind, found string, entry *alias.Entry, p *probe, err error) Result {
	if errors.Is(err, safeio.ErrOutsideRoot) {
		return unresolved(OutsideProjectRoot, spec, importer, p.tried, err)
	}
	if err != nil {
		return unresolved(IOError, spec, importer, p.tried, err)
	}
	if found == "" {
		return unresolved(NotFound, spec, importer, p.tried, nil)
	}
	if !utils.HasPathPrefix(found, tbl.RootDir()) && (entry == nil || !entry.AllowOutside) {
		if r.outside != OutsideWarn {
			return unresolved(OutsideProjectRoot, spec, importer, []string{found}, nil)
		}
		r.log.Printf("resolver: %q from %s resolved outside project root %s: %s", spec, importer, tbl.RootDir(), found)
	}
	return Result{Path: found, Kind: kind}
}

func unresolved(kind ErrorKind, spec, importer string, tried []string, err error) Result {
	return Result{Failure: &ResolutionError{
		Kind:       kind,
		Specifier:  spec,
		Importer:   importer,
		Candidates: append([]string(nil), tried...),
		Err:        err,
	}}
}
