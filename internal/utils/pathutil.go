package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizeSpecifier trims whitespace, collapses repeated '/' separators and
// strips a trailing '/'. It never resolves '.' or '..' segments; those are
// handled after alias substitution. The trailing '/' carries meaning, so
// callers check IsDirSpecifier on the raw input first.
func NormalizeSpecifier(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ""
	}
	spec = strings.ReplaceAll(spec, `\`, "/")
	var b strings.Builder
	b.Grow(len(spec))
	prevSlash := false
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	out := b.String()
	if len(out) > 1 {
		out = strings.TrimRight(out, "/")
	}
	return out
}

// IsDirSpecifier reports whether spec can only name a directory: it ends
// with a separator ("./components/") or its last segment is "." or "..".
// Such specifiers resolve to the directory's index file only.
func IsDirSpecifier(spec string) bool {
	spec = strings.TrimSpace(spec)
	if len(spec) > 1 && (strings.HasSuffix(spec, "/") || strings.HasSuffix(spec, `\`)) {
		return true
	}
	n := NormalizeSpecifier(spec)
	return n == "." || n == ".." || strings.HasSuffix(n, "/.") || strings.HasSuffix(n, "/..")
}

// NormalizePrefix applies NormalizeSpecifier and strips trailing slashes so
// "@/", "@//" and "@" compare equal.
func NormalizePrefix(prefix string) string {
	prefix = NormalizeSpecifier(prefix)
	prefix = strings.TrimRight(prefix, "/")
	return prefix
}

// IsRelative reports whether spec is "." or "..", or starts with "./" or "../".
func IsRelative(spec string) bool {
	switch {
	case spec == "." || spec == "..":
		return true
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		return true
	}
	return false
}

// HasSegmentPrefix reports whether prefix matches spec on a whole path
// segment: either the two are equal or spec continues with '/' right after
// prefix. "@/components" matches "@/components/Button" but not "@/componentsX".
func HasSegmentPrefix(spec, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(spec, prefix) {
		return false
	}
	if len(spec) == len(prefix) {
		return true
	}
	return spec[len(prefix)] == '/'
}

// Remainder returns what follows prefix in spec, without the leading '/'.
// Callers must check HasSegmentPrefix first.
func Remainder(spec, prefix string) string {
	return strings.TrimPrefix(spec[len(prefix):], "/")
}

// HasPathPrefix reports whether path lives under root (or equals it).
// Comparison is case-insensitive on Windows.
func HasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}

// AbsClean makes p absolute against base (when relative) and cleans it.
func AbsClean(base, p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
