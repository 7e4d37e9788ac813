package domain

import "errors"

var (
	ErrStreamBusy      = errors.New("someone else is already broadcasting")
	ErrNotStreamer     = errors.New("session is not currently broadcasting")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrSessionClosed   = errors.New("session closed")
)
