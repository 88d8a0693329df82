// Package check resolves every import under a source tree and reports the
// ones that do not resolve, the way an import linter would.
package check

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"modresolve/internal/alias"
	"modresolve/internal/resolver"
	"modresolve/internal/safeio"
	"modresolve/internal/scan"
)

// Resolver is the part of *resolver.Resolver the runner needs.
type Resolver interface {
	ResolveFile(ctx context.Context, spec, importerFile string) resolver.Result
}

// Diagnostic is one unresolved import statement.
type Diagnostic struct {
	File      string             `json:"file"`
	Line      int                `json:"line"`
	Specifier string             `json:"specifier"`
	Reason    resolver.ErrorKind `json:"reason"`
	Message   string             `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Specifier, d.Reason)
}

type Report struct {
	Files       int          `json:"files"`
	Imports     int          `json:"imports"`
	Resolved    int          `json:"resolved"`
	Retried     int          `json:"retried"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// OK reports whether every import resolved.
func (r Report) OK() bool { return len(r.Diagnostics) == 0 }

type Runner struct {
	Resolver Resolver
	// FS reads source files; it also confines the walk to its root.
	FS *safeio.SafeFS
	// Workers bounds concurrent files. <= 0 uses runtime.NumCPU().
	Workers    int
	Scan       scan.Options
	Extensions []string
	Logger     *log.Logger
}

// Run scans dir (relative to the FS root or absolute under it) and resolves
// every import found. An ambiguous alias aborts the run with an error
// matching alias.ErrConfig; other failures become diagnostics.
func (r *Runner) Run(ctx context.Context, dir string) (Report, error) {
	if r.Resolver == nil || r.FS == nil {
		return Report{}, errors.New("check: resolver and filesystem are required")
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	info, err := r.FS.SafeStat(dir)
	if err != nil {
		return Report{}, fmt.Errorf("check: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("check: %s is not a directory", dir)
	}
	root := dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(r.FS.Root(), root)
	}
	exts := r.Extensions
	if len(exts) == 0 {
		exts = scan.SourceExtensions
	}
	allowed := scan.ExtensionSet(exts)
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	files, walkErr := scan.Stream(gctx, root, r.Scan, true)
	for fv := range files {
		// The walk stops on its own once gctx is done; stop handing out work too.
		if gctx.Err() != nil {
			break
		}
		if _, ok := allowed[fv.Ext]; !ok {
			continue
		}
		fv := fv
		g.Go(func() error {
			src, err := r.FS.SafeReadFile(fv.AbsPath)
			if err != nil {
				logger.Printf("check: skip %s: %v", fv.Path, err)
				return nil
			}
			imports := scan.ExtractImports(src)
			local := Report{Files: 1, Imports: len(imports)}
			for _, imp := range imports {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, retried := r.resolve(gctx, imp.Specifier, fv.AbsPath)
				if retried {
					local.Retried++
				}
				if res.Resolved() {
					local.Resolved++
					continue
				}
				if res.Reason() == resolver.AmbiguousAlias {
					return fmt.Errorf("%w: %s:%d: %v", alias.ErrConfig, fv.Path, imp.Line, res.Err())
				}
				local.Diagnostics = append(local.Diagnostics, Diagnostic{
					File:      fv.Path,
					Line:      imp.Line,
					Specifier: imp.Specifier,
					Reason:    res.Reason(),
					Message:   res.Err().Error(),
				})
			}
			mu.Lock()
			report.Files += local.Files
			report.Imports += local.Imports
			report.Resolved += local.Resolved
			report.Retried += local.Retried
			report.Diagnostics = append(report.Diagnostics, local.Diagnostics...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := <-walkErr; err != nil {
		return Report{}, fmt.Errorf("check: walk %s: %w", root, err)
	}

	sort.Slice(report.Diagnostics, func(i, j int) bool {
		a, b := report.Diagnostics[i], report.Diagnostics[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	logger.Printf("check: %d files, %d imports, %d unresolved", report.Files, report.Imports, len(report.Diagnostics))
	return report, nil
}

// resolve retries once when the failure is a transient I/O error.
func (r *Runner) resolve(ctx context.Context, spec, file string) (resolver.Result, bool) {
	res := r.Resolver.ResolveFile(ctx, spec, file)
	if res.Resolved() || !res.Failure.Transient() {
		return res, false
	}
	return r.Resolver.ResolveFile(ctx, spec, file), true
}
