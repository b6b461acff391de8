package models

import "errors"

// Sentinel errors shared by the store and service layers. Handlers map them to
// HTTP status codes in utils.HandleServiceError.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrLinkInvalid        = errors.New("magic link invalid")
)
