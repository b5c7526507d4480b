package usecase

import (
	"context"
	"sync"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

func withPlaybackDefaults(cfg ports.PlaybackConfig) ports.PlaybackConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = domain.Channels
	}
	return cfg
}

// playbackPipeline plays assistant audio in arrival order. Frames are queued
// without bound; the speaker is opened on the first frame.
type playbackPipeline struct {
	speaker ports.Speaker
	cfg     ports.PlaybackConfig
	metrics ports.Metrics
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []domain.AudioFrame
	sink   ports.PlaybackSink
	failed bool
	closed bool
	played uint64
}

func newPlaybackPipeline(
	parent context.Context,
	speaker ports.Speaker,
	cfg ports.PlaybackConfig,
	metrics ports.Metrics,
	onError func(error),
) *playbackPipeline {
	ctx, cancel := context.WithCancel(parent)
	p := &playbackPipeline{
		speaker: speaker,
		cfg:     cfg,
		metrics: metrics,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue adds frame to the back of the queue.
func (p *playbackPipeline) Enqueue(frame domain.AudioFrame) {
	p.mu.Lock()
	if p.closed || p.failed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, frame)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued frames.
func (p *playbackPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// LastPlayed returns the sequence number of the last frame written.
func (p *playbackPipeline) LastPlayed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

// Failed reports whether the device failed. A failed pipeline drops frames.
func (p *playbackPipeline) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Close discards queued frames, releases the device and waits for the worker.
func (p *playbackPipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.queue = nil
	sink := p.sink
	p.mu.Unlock()

	p.cancel()
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Debug("playback sink close", "err", err)
		}
	}
	<-p.done
}

func (p *playbackPipeline) run() {
	defer close(p.done)
	for {
		frame, ok := p.next()
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.ctx.Done():
				return
			}
		}

		sink, err := p.ensureSink()
		if err == nil {
			err = sink.Write(audio.PCM16ToFloat32(frame.Samples))
		}
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.fail(err)
			return
		}
		p.mu.Lock()
		if frame.Seq != 0 && frame.Seq <= p.played {
			log.Warn("playback frame out of order", "seq", frame.Seq, "last", p.played)
		}
		p.played = frame.Seq
		p.mu.Unlock()
		p.metrics.FramePlayed()
	}
}

func (p *playbackPipeline) next() (domain.AudioFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return domain.AudioFrame{}, false
	}
	frame := p.queue[0]
	p.queue[0] = domain.AudioFrame{}
	p.queue = p.queue[1:]
	return frame, true
}

func (p *playbackPipeline) ensureSink() (ports.PlaybackSink, error) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		return sink, nil
	}

	sink, err := p.speaker.Open(p.ctx, p.cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = sink.Close()
		return nil, context.Canceled
	}
	p.sink = sink
	return sink, nil
}

func (p *playbackPipeline) fail(err error) {
	p.mu.Lock()
	p.failed = true
	p.queue = nil
	p.mu.Unlock()
	log.Warn("audio playback failed", "err", err)
	if p.onError != nil {
		// The session goroutine may be waiting in Close.
		go p.onError(err)
	}
}

func (c *SessionController) playFrame(s *activeSession, frame domain.AudioFrame) {
	if s.playback == nil {
		var p *playbackPipeline
		p = newPlaybackPipeline(c.baseCtx, c.speaker, c.cfg.Playback, c.metrics, func(err error) {
			c.post(func() { c.handlePlaybackFailed(s, p, err) })
		})
		s.playback = p
	}
	s.playback.Enqueue(frame)
}

func (c *SessionController) handlePlaybackFailed(s *activeSession, p *playbackPipeline, err error) {
	if c.active != s || s.playback != p {
		return
	}
	// The failed pipeline stays in place and drops the rest of this reply.
	c.raise(domain.NewVoiceError(domain.ErrorKindUnknown, "audio playback failed", err))
}
