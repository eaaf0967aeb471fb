package service

import "errors"

var (
	// ErrExecutorClosed is returned for submissions that were still queued when the session closed.
	ErrExecutorClosed = errors.New("session executor closed")
	// ErrRegistryClosed is returned once the registry has been shut down.
	ErrRegistryClosed = errors.New("session registry shut down")
	// ErrEmptySessionID is returned for a blank session key.
	ErrEmptySessionID = errors.New("session id is required")
)
