package billing

import "errors"

// Error kinds the HTTP layer maps onto status codes. Services wrap these with
// fmt.Errorf("...: %w", ...) so callers can match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrSignature  = errors.New("invalid signature")
)
