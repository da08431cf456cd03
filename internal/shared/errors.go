package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or rejected input data.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a requested status edge outside the legal set.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrStaleState indicates an optimistic concurrency conflict; the caller
	// must re-read current state and retry or surface the conflict.
	ErrStaleState = errors.New("stale state, reload and retry")
	// ErrUnauthorized indicates the actor role or token does not permit the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIncompleteGate indicates gate completion was requested with unchecked
	// checklist items or a missing signature.
	ErrIncompleteGate = errors.New("gate checklist or signature incomplete")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
