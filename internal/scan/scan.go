package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// FileVisit carries per-entry metadata to user callbacks.
type FileVisit struct {
	// Root-relative path using forward slashes (e.g., "src/app.ts").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// True when the entry is a directory.
	IsDir bool
	// Lowercased extension (e.g., ".ts"); empty for dirs or no-ext files.
	Ext string
}

// VisitFunc is invoked for every visited entry.
type VisitFunc func(f FileVisit)

// Options tunes a walk.
type Options struct {
	// MaxDepth limits how many path segments a visited entry may have. 0 is unlimited.
	MaxDepth int
	// IgnoreDirs are directory base names skipped in addition to DefaultIgnoreDirs.
	IgnoreDirs []string
}

// DefaultIgnoreDirs are never descended into: VCS metadata, dependencies and build output.
var DefaultIgnoreDirs = []string{".git", ".hg", ".svn", "node_modules", "vendor", "dist", "build", "coverage", ".next", ".cache", ".expo"}

// ScanWithOptions walks root and invokes cb for each entry below it (the
// root itself is not reported). Unreadable entries are skipped.
func ScanWithOptions(root string, opts Options, cb VisitFunc) error {
	return walk(root, opts, func(fv FileVisit) error {
		if cb != nil {
			cb(fv)
		}
		return nil
	})
}

// ScanContext is ScanWithOptions with a callback that can stop the walk.
// The walk checks ctx before every entry and returns ctx.Err() once it is
// done; an error from cb is returned as is, except filepath.SkipAll which
// ends the walk without error.
func ScanContext(ctx context.Context, root string, opts Options, cb func(FileVisit) error) error {
	return walk(root, opts, func(fv FileVisit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cb == nil {
			return nil
		}
		return cb(fv)
	})
}

func walk(root string, opts Options, cb func(FileVisit) error) error {
	root = filepath.Clean(root)
	ignore := make(map[string]struct{}, len(DefaultIgnoreDirs)+len(opts.IgnoreDirs))
	for _, d := range DefaultIgnoreDirs {
		ignore[d] = struct{}{}
	}
	for _, d := range opts.IgnoreDirs {
		if d = strings.TrimSpace(d); d != "" {
			ignore[d] = struct{}{}
		}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() {
			if _, skip := ignore[d.Name()]; skip {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return cb(FileVisit{Path: rel, AbsPath: path, IsDir: true})
		}
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			return nil
		}
		return cb(FileVisit{Path: rel, AbsPath: path, Ext: strings.ToLower(filepath.Ext(rel))})
	})
}
