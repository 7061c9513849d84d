package models

import (
	"errors"
	"fmt"
)

// Error categories. Callers classify with errors.Is; transports map each
// category to a status code.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("authentication failed")
	ErrForbidden  = errors.New("forbidden")
	ErrDuplicate  = errors.New("duplicate")
	ErrNotFound   = errors.New("not found")
	ErrTooLarge   = errors.New("payload too large")
	ErrStorage    = errors.New("storage error")
	ErrQuery      = errors.New("query error")
)

// Refinements that still match their category.
var (
	ErrRecordNotFound    = fmt.Errorf("%w: file not found", ErrNotFound)
	ErrBlobNotFound      = fmt.Errorf("%w: physical file not found", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrDuplicateUsername = fmt.Errorf("%w: username already exists", ErrDuplicate)
	ErrUnknownUploader   = fmt.Errorf("%w: unknown uploader", ErrValidation)
)

// Validationf builds an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
