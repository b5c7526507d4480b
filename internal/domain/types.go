package domain

// SessionState models the voice session lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateConnecting   SessionState = "connecting"
	SessionStateConnected    SessionState = "connected"
	SessionStateListening    SessionState = "listening"
	SessionStateSpeaking     SessionState = "speaking"
	SessionStateReconnecting SessionState = "reconnecting"
	SessionStateErrored      SessionState = "errored"
	SessionStateFallback     SessionState = "fallback"
)

// SessionStates lists every state a session can be in.
var SessionStates = []SessionState{
	SessionStateIdle,
	SessionStateConnecting,
	SessionStateConnected,
	SessionStateListening,
	SessionStateSpeaking,
	SessionStateReconnecting,
	SessionStateErrored,
	SessionStateFallback,
}

// Valid reports whether s is one of the known states.
func (s SessionState) Valid() bool {
	for _, known := range SessionStates {
		if s == known {
			return true
		}
	}
	return false
}

// HasTransport reports whether a state implies an open duplex transport.
func (s SessionState) HasTransport() bool {
	switch s {
	case SessionStateConnected, SessionStateListening, SessionStateSpeaking, SessionStateErrored:
		return true
	default:
		return false
	}
}

const (
	// SampleRate is the wire sample rate in Hz for both directions.
	SampleRate = 24000
	// Channels is the wire channel count.
	Channels = 1
	// FrameSamples is the default capture block size.
	FrameSamples = 4096
)

// AudioFrame is a block of PCM16 mono samples at SampleRate.
type AudioFrame struct {
	Seq     uint64  `json:"seq"`
	Samples []int16 `json:"-"`
}

// DurationMillis returns the playback length of the frame in milliseconds.
func (f AudioFrame) DurationMillis() int {
	return len(f.Samples) * 1000 / SampleRate
}

// CapabilityReport is the result of probing the runtime for voice support.
type CapabilityReport struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

// Status is a read-only snapshot of the session observables.
type Status struct {
	SessionID         string       `json:"sessionId,omitempty"`
	State             SessionState `json:"state"`
	Connected         bool         `json:"connected"`
	Listening         bool         `json:"listening"`
	Speaking          bool         `json:"speaking"`
	Voice             string       `json:"voice"`
	LastTranscript    string       `json:"lastTranscript,omitempty"`
	ResponseText      string       `json:"responseText,omitempty"`
	Level             float64      `json:"level"`
	ReconnectAttempts int          `json:"reconnectAttempts"`
	Error             *VoiceError  `json:"error,omitempty"`
}
