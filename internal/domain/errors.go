package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of caller-facing voice failures.
type ErrorKind string

const (
	ErrorKindMicDenied   ErrorKind = "mic_denied"
	ErrorKindMicNotFound ErrorKind = "mic_not_found"
	ErrorKindConnection  ErrorKind = "connection_error"
	ErrorKindAPI         ErrorKind = "api_error"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindUnsupported ErrorKind = "unsupported"
	ErrorKindUnknown     ErrorKind = "unknown"
)

// Kind sentinels for errors.Is matching against a *VoiceError.
var (
	ErrMicDenied   = &VoiceError{Kind: ErrorKindMicDenied}
	ErrMicNotFound = &VoiceError{Kind: ErrorKindMicNotFound}
	ErrConnection  = &VoiceError{Kind: ErrorKindConnection}
	ErrAPI         = &VoiceError{Kind: ErrorKindAPI}
	ErrTimeout     = &VoiceError{Kind: ErrorKindTimeout}
	ErrUnsupported = &VoiceError{Kind: ErrorKindUnsupported}
	ErrUnknown     = &VoiceError{Kind: ErrorKindUnknown}
)

// VoiceError is surfaced to callers for every voice failure.
type VoiceError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Err         error     `json:"-"`
}

// NewVoiceError builds a VoiceError with the default recoverability for kind.
func NewVoiceError(kind ErrorKind, message string, cause error) *VoiceError {
	return &VoiceError{
		Kind:        kind,
		Message:     message,
		Recoverable: DefaultRecoverable(kind),
		Err:         cause,
	}
}

// DefaultRecoverable reports whether the session stays connectable after kind.
// Connection errors are recoverable while retries remain; the exhausted case is
// built explicitly as non-recoverable.
func DefaultRecoverable(kind ErrorKind) bool {
	switch kind {
	case ErrorKindUnsupported:
		return false
	default:
		return true
	}
}

func (e *VoiceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *VoiceError) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, domain.ErrTimeout).
func (e *VoiceError) Is(target error) bool {
	var other *VoiceError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// AsVoiceError extracts a VoiceError from err, wrapping foreign errors as unknown.
func AsVoiceError(err error) *VoiceError {
	if err == nil {
		return nil
	}
	var verr *VoiceError
	if errors.As(err, &verr) {
		return verr
	}
	return NewVoiceError(ErrorKindUnknown, err.Error(), err)
}
