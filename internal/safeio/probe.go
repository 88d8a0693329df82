package safeio

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// FS is the read-only view the resolver probes. Only existence and kind are
// inspected; file contents are never read through it.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
}

// OSFS probes the host filesystem without restrictions.
type OSFS struct{}

func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// IsNotExist reports whether err means the candidate is simply absent,
// including a path component that is a regular file (ENOTDIR).
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// IsTransient reports whether an I/O failure is worth one retry.
// Absent files, permission problems and root escapes are permanent.
func IsTransient(err error) bool {
	if err == nil || IsNotExist(err) {
		return false
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, ErrOutsideRoot) {
		return false
	}
	return true
}
