package resolver

import (
	"errors"
	"fmt"
	"strings"

	"modresolve/internal/safeio"
)

// Kind tells how a specifier was resolved.
type Kind string

const (
	KindAlias         Kind = "alias"
	KindRelative      Kind = "relative"
	KindPackageLookup Kind = "package_lookup"
	KindAbsolute      Kind = "absolute"
)

// ErrorKind classifies an unresolved specifier.
type ErrorKind string

const (
	NotFound           ErrorKind = "not_found"
	AmbiguousAlias     ErrorKind = "ambiguous_alias"
	OutsideProjectRoot ErrorKind = "outside_project_root"
	IOError            ErrorKind = "io_error"
)

var (
	ErrNotFound           = errors.New("module not found")
	ErrAmbiguousAlias     = errors.New("ambiguous alias")
	ErrOutsideProjectRoot = errors.New("resolved outside project root")
	ErrIO                 = errors.New("i/o error while probing")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case NotFound:
		return ErrNotFound
	case AmbiguousAlias:
		return ErrAmbiguousAlias
	case OutsideProjectRoot:
		return ErrOutsideProjectRoot
	default:
		return ErrIO
	}
}

// ResolutionError carries enough context for a human-readable diagnostic.
type ResolutionError struct {
	Kind       ErrorKind `json:"kind"`
	Specifier  string    `json:"specifier"`
	Importer   string    `json:"importer"`
	Candidates []string  `json:"candidates,omitempty"`
	Err        error     `json:"-"`
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve %q from %s: %s", e.Specifier, e.Importer, e.Kind.sentinel())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Candidates) > 0 {
		b.WriteString(" (tried ")
		b.WriteString(strings.Join(e.Candidates, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, e.g. errors.Is(err, ErrNotFound).
func (e *ResolutionError) Is(target error) bool { return target == e.Kind.sentinel() }

// Transient reports whether one retry may succeed.
func (e *ResolutionError) Transient() bool {
	return e.Kind == IOError && safeio.IsTransient(e.Err)
}

// Result is either Resolved (Failure == nil) or Unresolved.
type Result struct {
	Path    string           `json:"path,omitempty"`
	Kind    Kind             `json:"kind,omitempty"`
	Failure *ResolutionError `json:"failure,omitempty"`
}

func (r Result) Resolved() bool { return r.Failure == nil }

// Reason returns the failure kind, or "" when resolved.
func (r Result) Reason() ErrorKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

// Err returns the failure as an error, or nil when resolved.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
