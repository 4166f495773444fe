package domain

import "errors"

var (
	// ErrValidation blocks a transition until the user edits their input.
	ErrValidation = errors.New("validation failed")
	// ErrInitialization is terminal for a session.
	ErrInitialization = errors.New("chat initialization failed")
	// ErrGeneration is recoverable; a fallback turn is recorded instead of a reply.
	ErrGeneration = errors.New("generation failed")
	// ErrPersistence is logged and never surfaced.
	ErrPersistence = errors.New("persistence failed")

	ErrEngineNotReady       = errors.New("chat engine is not ready")
	ErrSendInFlight         = errors.New("a reply is still pending")
	ErrInvalidTransition    = errors.New("invalid session transition")
	ErrConfirmationRequired = errors.New("reset requires confirmation")
)
