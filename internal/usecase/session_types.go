package usecase

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"tutorvoice/internal/ports"
)

// activeSession is one Connect..Disconnect lifetime. It survives reconnects
// and is touched only from the session goroutine, so it carries no locks.
type activeSession struct {
	id             string
	voice          string
	confirmedVoice string

	transport    ports.Transport
	transportGen uint64
	dialCancel   context.CancelFunc
	// ready is set once the server confirmed the current transport.
	ready bool
	// inboundSeq numbers assistant audio frames in arrival order.
	inboundSeq uint64

	attempts       int
	backoff        *backoff.ExponentialBackOff
	reconnectTimer ports.Timer
	reconnectGen   uint64

	capture  *capturePipeline
	playback *playbackPipeline

	// closing is set before any teardown step so late transport callbacks
	// never schedule a reconnect.
	closing bool

	aggregator *transcriptAggregator
}

func newActiveSession(voice string, policy ReconnectPolicy) *activeSession {
	return &activeSession{
		id:         uuid.NewString(),
		voice:      voice,
		backoff:    policy.newBackOff(),
		aggregator: newTranscriptAggregator(),
	}
}

// current reports whether a callback tagged with gen belongs to the live
// transport of s.
func (s *activeSession) current(gen uint64) bool {
	return !s.closing && gen == s.transportGen
}
