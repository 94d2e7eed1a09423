package session

import "errors"

var (
	// ErrStorageUnavailable wraps failures of the durable storage backend.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrCorruptIdentity is returned when a persisted identity cannot be decoded.
	ErrCorruptIdentity = errors.New("persisted identity corrupt")
)
