package optimizer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks requests that cannot be formulated.
	ErrConfiguration = errors.New("invalid optimization request")
	// ErrEngine marks failures reported by the MIP engine.
	ErrEngine = errors.New("optimization engine failure")
)

// ConfigurationError is returned before any solve when the catalog or the
// bounds are unusable.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(err error, format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// EngineFailure wraps an engine error raised while solving iteration
// Iteration (1-based).
type EngineFailure struct {
	Iteration int
	Err       error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("%s at iteration %d: %v", ErrEngine, e.Iteration, e.Err)
}

func (e *EngineFailure) Is(target error) bool { return target == ErrEngine }

func (e *EngineFailure) Unwrap() error { return e.Err }
