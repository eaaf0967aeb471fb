package service

import "errors"

var (
	// ErrInvalidRequest marks a request rejected before any side effect.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnavailable marks a collaborator that isn't configured.
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrSessionNotFound marks a session with no live browser.
	ErrSessionNotFound = errors.New("session not found")
)
