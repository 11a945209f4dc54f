// Package errors provides the error taxonomy shared by the simplot packages.
//
// Sentinel errors describe broad conditions and work with errors.Is.
// ProcessingError carries a classified code for failures raised while
// reading and classifying an action log.
//
// Usage:
//
//	import sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
//
//	if sperrors.IsValidation(err) {
//	    // header or field did not match the expected schema
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested input was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates input that does not match the expected schema.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
