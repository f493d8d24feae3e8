package session

import "errors"

var (
	// ErrInvalidTransition is returned when an event is not legal for the
	// current state triple. State is left untouched.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotConnected is returned for audio toggles while the transport
	// is not connected.
	ErrNotConnected = errors.New("session transport is not connected")

	// ErrSessionTerminated is returned for any request against a session
	// whose lifecycle already reached completed.
	ErrSessionTerminated = errors.New("session already completed")

	// ErrSessionNotFound is returned when no live session exists for the
	// given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when a start request collides with a
	// live session for the same (user, scenario) pair.
	ErrSessionExists = errors.New("a live session already exists for this user and scenario")

	// ErrResumeWindowExceeded is returned for reconnect attempts after
	// the resume window elapsed and the session was force-completed.
	ErrResumeWindowExceeded = errors.New("resume window elapsed")

	// ErrAccessDenied is returned when the authenticated user is not the
	// session's owner.
	ErrAccessDenied = errors.New("access denied")
)
