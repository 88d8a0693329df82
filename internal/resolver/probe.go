package resolver

import (
	"io/fs"
	"path/filepath"

	"modresolve/internal/safeio"
)

// probe runs the candidate search for one resolution and records every
// path it stats.
type probe struct {
	fs   safeio.FS
	exts []string
	// dirOnly skips the file candidates, for specifiers such as "./lib/".
	dirOnly bool
	tried   []string
}

func newProbe(fsys safeio.FS, exts []string, dirOnly bool) *probe {
	return &probe{fs: fsys, exts: exts, dirOnly: dirOnly}
}

// module returns the first existing candidate for base, or "" if none.
// Order: base itself, base+ext for each extension, then base/index+ext.
// A dirOnly probe goes straight to base/index+ext.
// Any stat failure other than "does not exist" aborts the search.
func (p *probe) module(base string) (string, error) {
	info, err := p.stat(base)
	if err != nil {
		return "", err
	}
	if p.dirOnly {
		if info == nil || !info.IsDir() {
			return "", nil
		}
		return p.index(base)
	}
	if info != nil && !info.IsDir() {
		return base, nil
	}
	isDir := info != nil

	for _, ext := range p.exts {
		cand := base + ext
		ci, err := p.stat(cand)
		if err != nil {
			return "", err
		}
		if ci != nil && !ci.IsDir() {
			return cand, nil
		}
	}

	if !isDir {
		return "", nil
	}
	return p.index(base)
}

func (p *probe) index(dir string) (string, error) {
	for _, ext := range p.exts {
		cand := filepath.Join(dir, "index"+ext)
		ci, err := p.stat(cand)
		if err != nil {
			return "", err
		}
		if ci != nil && !ci.IsDir() {
			return cand, nil
		}
	}
	return "", nil
}

// stat returns (nil, nil) for an absent path.
func (p *probe) stat(name string) (fs.FileInfo, error) {
	p.tried = append(p.tried, name)
	info, err := p.fs.Stat(name)
	if err != nil {
		if safeio.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}
