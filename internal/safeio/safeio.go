package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"modresolve/internal/utils"
)

// ErrOutsideRoot is returned for paths that resolve outside the SafeFS root.
var ErrOutsideRoot = errors.New("safeio: path outside root")

// SafeFS provides read-only helpers that resolve paths relative to a fixed root.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
// The root path is resolved to an absolute, symlink-free directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// SafeReadFile reads a file relative to the root.
func (s *SafeFS) SafeReadFile(userPath string) ([]byte, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// SafeStat returns metadata for a file or directory under the root.
func (s *SafeFS) SafeStat(userPath string) (fs.FileInfo, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// Stat implements FS, so a SafeFS can confine resolver probes to the root.
func (s *SafeFS) Stat(name string) (fs.FileInfo, error) {
	return s.SafeStat(name)
}

func (s *SafeFS) resolve(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if userPath == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(userPath)
	if clean == "." {
		return s.absRoot, nil
	}

	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs {
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, userPath)
		}
	}

	var joined string
	if isAbs {
		joined = clean
	} else {
		joined = filepath.Join(s.absRoot, clean)
	}

	resolved, missing, err := evalExisting(joined)
	if err != nil {
		return "", err
	}
	if !utils.HasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w (root=%s, path=%s)", ErrOutsideRoot, s.absRoot, resolved)
	}
	if missing {
		return "", &fs.PathError{Op: "stat", Path: userPath, Err: fs.ErrNotExist}
	}
	return resolved, nil
}

// evalExisting resolves symlinks in the longest existing ancestor of p and
// appends the rest unchanged, so absent paths can still be checked against
// the root. missing reports whether p itself does not exist.
func evalExisting(p string) (resolved string, missing bool, err error) {
	rest := ""
	cur := p
	for {
		var resolvedPath string
		resolvedPath, err = filepath.EvalSymlinks(cur)
		if err == nil {
			if rest != "" {
				resolvedPath = filepath.Join(resolvedPath, rest)
			}
			return resolvedPath, rest != "", nil
		}
		if !IsNotExist(err) {
			return "", false, err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false, err
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}
