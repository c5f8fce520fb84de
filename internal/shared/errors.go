package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across warehouse modules. Services wrap these with
// context; HTTP handlers map them to status codes.
var (
	// ErrNotFound indicates an unknown entity, cluster, or invoice.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a rejected request prior to any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or concurrent-update conflict.
	ErrConflict = errors.New("conflict")
	// ErrResolution indicates a cycle or an over-deep merge chain. Resolution
	// fails closed rather than returning a wrong canonical id.
	ErrResolution = errors.New("merge chain resolution failed")
	// ErrForbidden indicates the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid caller identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// UserSafeMessage returns a message suitable for API consumers. Internal
// storage errors are collapsed so details never leak to clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrResolution),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal error"
	}
}
