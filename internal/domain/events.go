package domain

import "time"

// EventType names a session observable.
type EventType string

const (
	EventState        EventType = "state"
	EventTranscript   EventType = "transcript"
	EventResponseText EventType = "response_text"
	EventLevel        EventType = "level"
	EventError        EventType = "error"
	EventFallback     EventType = "fallback"
)

// Event is the serialized form of an observable, shared by the HTTP stream,
// MQTT and desktop surfaces.
type Event struct {
	Type   EventType    `json:"type"`
	State  SessionState `json:"state,omitempty"`
	Text   string       `json:"text,omitempty"`
	Final  bool         `json:"final,omitempty"`
	Level  float64      `json:"level,omitempty"`
	Error  *VoiceError  `json:"error,omitempty"`
	Reason string       `json:"reason,omitempty"`
	At     time.Time    `json:"at"`
}
