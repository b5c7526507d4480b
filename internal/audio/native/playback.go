//go:build native

package native

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/ports"
)

var errSinkClosed = errors.New("playback sink closed")

// Speaker plays through oto. oto allows one context per process, so the
// first Probe or Open fixes the sample rate and channel count.
type Speaker struct {
	once sync.Once
	ctx  *oto.Context
	err  error
}

func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Probe initializes the output context for cfg without opening a player.
func (s *Speaker) Probe(cfg ports.PlaybackConfig) error {
	return s.init(cfg)
}

func (s *Speaker) Open(_ context.Context, cfg ports.PlaybackConfig) (ports.PlaybackSink, error) {
	if err := s.init(cfg); err != nil {
		return nil, err
	}

	sink := &sink{}
	sink.cond = sync.NewCond(&sink.mu)
	sink.player = s.ctx.NewPlayer(sink)
	sink.player.Play()
	return sink, nil
}

func (s *Speaker) init(cfg ports.PlaybackConfig) error {
	s.once.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: max(cfg.Channels, 1),
			Format:       oto.FormatFloat32LE,
			BufferSize:   100 * time.Millisecond,
		}
		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			s.err = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		s.ctx = ctx
	})
	return s.err
}

// sink buffers written samples for the oto player to pull.
type sink struct {
	player *oto.Player

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func (s *sink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.buf = append(s.buf, audio.Float32LEBytes(samples)...)
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for oto.Player.
func (s *sink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		// Silence lets oto drain after close.
		clear(p)
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	return s.player.Close()
}
