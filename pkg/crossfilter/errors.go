package crossfilter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDimension is returned when a name does not match a registered dimension.
	ErrUnknownDimension = errors.New("unknown dimension")

	// ErrDuplicateDimension is returned when registering a name twice.
	ErrDuplicateDimension = errors.New("dimension already registered")

	// ErrTooManyDimensions is returned when registering more than MaxDimensions.
	ErrTooManyDimensions = errors.New("too many dimensions")

	// ErrNonFiniteKey is returned when a projection yields NaN or an infinity.
	ErrNonFiniteKey = errors.New("non-finite key")

	// ErrInvalidRange is returned for a range with a NaN bound or lo > hi.
	ErrInvalidRange = errors.New("invalid filter range")
)

// ValidationError reports a rejected filter. The dimension keeps its previous filter.
type ValidationError struct {
	Dimension string
	Range     Range
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dimension %q: range %s: %v", e.Dimension, e.Range, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports a dimension that is unknown or cannot be registered.
type ConfigurationError struct {
	Dimension string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dimension %q: %v", e.Dimension, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
