package sigil

import (
	"errors"
	"fmt"
)

// Configuration error kinds. Use errors.Is against these.
var (
	ErrTooFewAnchors    = errors.New("sigil needs at least 2 anchors")
	ErrInvalidEndpoints = errors.New("invalid entry/exit anchors")
	ErrInvalidPath      = errors.New("edges do not form a simple path")
	ErrInvalidTolerance = errors.New("invalid tolerance")
	ErrInvalidCapture   = errors.New("invalid capture radius")
	ErrInvalidBudget    = errors.New("invalid time budget")
)

// ConfigurationError reports an anchor graph or tracing configuration that
// can never produce a valid attempt. It is returned at construction time only.
type ConfigurationError struct {
	Kind error
	Msg  string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Kind }

// Errorf builds a ConfigurationError of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &ConfigurationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
