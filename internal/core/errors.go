package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the dispatcher matches exactly one of
// these with errors.Is.
var (
	// ErrValidation indicates bad input shape or format.
	ErrValidation = errors.New("validation error")
	// ErrSynthesis indicates the synthesis engine failed.
	ErrSynthesis = errors.New("synthesis error")
	// ErrStorage indicates an upload or download failed.
	ErrStorage = errors.New("storage error")
	// ErrAuth indicates a rejected credential.
	ErrAuth = errors.New("authentication error")
	// ErrNotFound indicates an unknown resource id.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable indicates a collaborator could not be reached or failed
	// on its side, so the request itself was never judged.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Error wraps a collaborator failure with the operation and voice it happened in.
type Error struct {
	Kind    error
	Op      string
	VoiceID string
	Err     error
}

// E builds an *Error. err may be nil for failures that have no underlying cause.
func E(kind error, op, voiceID string, err error) *Error {
	return &Error{Kind: kind, Op: op, VoiceID: voiceID, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.VoiceID != "" {
		msg += fmt.Sprintf(" (voice %q)", e.VoiceID)
	}

	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind carried by err, or nil when err is not
// classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrSynthesis, ErrStorage, ErrAuth, ErrNotFound, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}
