package domain

import "errors"

// Sentinel errors shared across the core. Callers match with errors.Is and
// the transport layer maps them to stable error codes.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrMaxRetries = errors.New("max retries exceeded")
	ErrStore      = errors.New("store error")
)
