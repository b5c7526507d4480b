package ports

import (
	"context"
	"errors"
	"time"

	"tutorvoice/internal/domain"
)

var (
	// ErrMicrophoneDenied is returned when the platform refuses microphone access.
	ErrMicrophoneDenied = errors.New("microphone access denied")
	// ErrMicrophoneNotFound is returned when no capture device is present.
	ErrMicrophoneNotFound = errors.New("no microphone found")
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate   int
	Channels     int
	FrameSamples int
	InputFormat  string
	InputDevice  string
}

// CaptureStream is a live microphone stream.
type CaptureStream interface {
	// Stop releases the device. Safe to call more than once.
	Stop() error
	// Wait blocks until the stream ends and returns the reason, nil after Stop.
	Wait() error
}

// Microphone opens capture streams. onBlock is invoked sequentially on the
// backend's audio goroutine with exactly FrameSamples float32 samples in
// [-1, 1]; it must not block.
type Microphone interface {
	Open(ctx context.Context, cfg CaptureConfig, onBlock func(samples []float32)) (CaptureStream, error)
}

// PlaybackConfig describes the output device.
type PlaybackConfig struct {
	SampleRate   int
	Channels     int
	OutputFormat string
	OutputDevice string
}

// PlaybackSink renders float32 samples in the order written.
type PlaybackSink interface {
	Write(samples []float32) error
	Close() error
}

// Speaker opens playback sinks.
type Speaker interface {
	Open(ctx context.Context, cfg PlaybackConfig) (PlaybackSink, error)
}

// TransportConfig describes the duplex connection to the speech service.
type TransportConfig struct {
	URL       string
	APIKey    string
	Model     string
	Heartbeat time.Duration
}

// Transport is an open duplex message channel.
type Transport interface {
	// Send enqueues msg without blocking on network I/O.
	Send(msg domain.ControlMessage) error
	// Events delivers inbound messages in receive order and is closed when
	// the transport closes.
	Events() <-chan domain.ControlMessage
	// Wait blocks until the transport is closed. A nil result means a clean
	// close.
	Wait() error
	Close() error
}

// TransportDialer opens transports.
type TransportDialer interface {
	Dial(ctx context.Context, cfg TransportConfig) (Transport, error)
}

// TranscriptRules transforms final transcripts using deterministic rules.
type TranscriptRules interface {
	Apply(text string) (string, error)
}

// EventSink receives session observables. Level is called from the audio
// goroutine and must return quickly.
type EventSink interface {
	StateChanged(state domain.SessionState)
	Transcript(text string, isFinal bool)
	ResponseText(delta string)
	Level(level float64)
	VoiceError(err *domain.VoiceError)
	Fallback(reason string)
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Metrics records session telemetry.
type Metrics interface {
	StateTransition(from, to domain.SessionState)
	ReconnectScheduled(attempt int, delay time.Duration)
	FrameSent()
	FrameDropped()
	FramePlayed()
	VoiceError(kind domain.ErrorKind, recoverable bool)
	Fallback(reason string)
	SessionOpened()
	SessionClosed()
}
