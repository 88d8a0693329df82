package alias

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every *ConfigError via errors.Is.
	ErrConfig = errors.New("alias: invalid configuration")
	// ErrAmbiguous reports two entries matching a specifier at the same length.
	ErrAmbiguous = errors.New("alias: ambiguous alias match")
)

// ConfigError describes a rejected alias table configuration.
type ConfigError struct {
	Prefix string
	Reason string
	Err    error
}

func configErrorf(prefix, format string, args ...any) *ConfigError {
	return &ConfigError{Prefix: prefix, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Prefix == "" {
		return "alias: " + e.Reason
	}
	return fmt.Sprintf("alias: prefix %q: %s", e.Prefix, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func (e *ConfigError) Unwrap() error { return e.Err }
