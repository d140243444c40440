package landmark

import (
	"errors"
	"fmt"
)

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("landmark config error")

// ConfigError reports a landmark source that cannot be turned into a Store.
// Source is the file path (or "<reader>"), Landmark the offending id if any,
// Line the 1-based line in the document when known.
type ConfigError struct {
	Source   string
	Landmark string
	Line     int
	Err      error
}

func (e *ConfigError) Error() string {
	msg := "landmarks " + e.Source
	if e.Line > 0 {
		msg += fmt.Sprintf(":%d", e.Line)
	}
	if e.Landmark != "" {
		msg += fmt.Sprintf(" (landmark %q)", e.Landmark)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

var (
	errDuplicateID   = errors.New("duplicate landmark id")
	errEmptyID       = errors.New("empty landmark id")
	errMissingField  = errors.New("missing required field")
	errNotMapping    = errors.New("expected a mapping of landmark id to {x, y}")
	errNonFiniteCoor = errors.New("coordinate is not a finite number")
)
