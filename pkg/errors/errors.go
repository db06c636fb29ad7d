package linkup_errors

import "errors"

// Common errors
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyMessage  = errors.New("message has no content and no attachments")
	ErrNotConnected  = errors.New("event channel not connected")
	ErrGateClosed    = errors.New("pending connection not confirmed")
	ErrSessionClosed = errors.New("conversation session closed")
)
