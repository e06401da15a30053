package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Argument errors
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnsupportedMethod  = errors.New("unsupported method")
	ErrInvalidAlternative = fmt.Errorf("%w: alternative", ErrInvalidArgument)

	// Numerical errors
	ErrNoConvergence = errors.New("numerical procedure did not converge")
	ErrNotBracketed  = fmt.Errorf("%w: root not bracketed", ErrNoConvergence)
)

// Error constructors with context
func NewInvalidArgumentError(param string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidArgument, param, reason)
}

func NewUnsupportedMethodError(operation string, method string) error {
	return fmt.Errorf("%w %q for %s", ErrUnsupportedMethod, method, operation)
}

func NewNoConvergenceError(procedure string, iterations int) error {
	return fmt.Errorf("%w: %s after %d iterations", ErrNoConvergence, procedure, iterations)
}

// DeprecationWarning is reported alongside a result when a caller used a
// parameter name that has been replaced. It never changes the result.
type DeprecationWarning struct {
	Param       string
	Replacement string
}

func (w DeprecationWarning) Error() string {
	return fmt.Sprintf("%s is deprecated, use %s", w.Param, w.Replacement)
}

// Error checking helpers
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsUnsupportedMethod(err error) bool {
	return errors.Is(err, ErrUnsupportedMethod)
}

func IsNoConvergence(err error) bool {
	return errors.Is(err, ErrNoConvergence)
}
