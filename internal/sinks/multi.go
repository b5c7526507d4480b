// Package sinks fans session events out to several consumers.
package sinks

import (
	"time"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

// Multi forwards every event to each sink in order.
type Multi []ports.EventSink

// NewMulti drops nil sinks.
func NewMulti(sinks ...ports.EventSink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) StateChanged(state domain.SessionState) {
	for _, s := range m {
		s.StateChanged(state)
	}
}

func (m Multi) Transcript(text string, isFinal bool) {
	for _, s := range m {
		s.Transcript(text, isFinal)
	}
}

func (m Multi) ResponseText(delta string) {
	for _, s := range m {
		s.ResponseText(delta)
	}
}

func (m Multi) Level(level float64) {
	for _, s := range m {
		s.Level(level)
	}
}

func (m Multi) VoiceError(err *domain.VoiceError) {
	for _, s := range m {
		s.VoiceError(err)
	}
}

func (m Multi) Fallback(reason string) {
	for _, s := range m {
		s.Fallback(reason)
	}
}

// Discard ignores every event.
type Discard struct{}

func (Discard) StateChanged(domain.SessionState) {}
func (Discard) Transcript(string, bool)          {}
func (Discard) ResponseText(string)              {}
func (Discard) Level(float64)                    {}
func (Discard) VoiceError(*domain.VoiceError)    {}
func (Discard) Fallback(string)                  {}

// Func adapts a single event handler to ports.EventSink.
type Func func(domain.Event)

func (f Func) StateChanged(state domain.SessionState) {
	f(domain.Event{Type: domain.EventState, State: state, At: time.Now()})
}

func (f Func) Transcript(text string, isFinal bool) {
	f(domain.Event{Type: domain.EventTranscript, Text: text, Final: isFinal, At: time.Now()})
}

func (f Func) ResponseText(delta string) {
	f(domain.Event{Type: domain.EventResponseText, Text: delta, At: time.Now()})
}

func (f Func) Level(level float64) {
	f(domain.Event{Type: domain.EventLevel, Level: level, At: time.Now()})
}

func (f Func) VoiceError(err *domain.VoiceError) {
	f(domain.Event{Type: domain.EventError, Error: err, At: time.Now()})
}

func (f Func) Fallback(reason string) {
	f(domain.Event{Type: domain.EventFallback, Reason: reason, At: time.Now()})
}
