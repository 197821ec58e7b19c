package service

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")

	// ErrInvalidState is returned for operations on a stopped session; the
	// client should stop local tracking and start a fresh session.
	ErrInvalidState = errors.New("session is stopped")

	// ErrUnavailable wraps transient store failures that survived the
	// bounded retry; the caller is expected to retry the whole request.
	ErrUnavailable = errors.New("store unavailable")
)
