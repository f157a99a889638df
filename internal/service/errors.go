package service

import "errors"

// Error taxonomy shared by REST handlers and the realtime gateway. Handlers
// translate these to 404/400/403; the gateway drops the event instead.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidState = errors.New("operation not allowed in current chat state")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)
