package usecase

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

func withCaptureDefaults(cfg ports.CaptureConfig) ports.CaptureConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = domain.Channels
	}
	if cfg.FrameSamples < 256 {
		cfg.FrameSamples = domain.FrameSamples
	}
	return cfg
}

// capturePipeline turns microphone blocks into outbound audio frames. It
// runs on the backend's audio goroutine and only reads session state.
type capturePipeline struct {
	c         *SessionController
	transport ports.Transport

	seq     atomic.Uint64
	stopped atomic.Bool
	stream  ports.CaptureStream

	stopOnce sync.Once
	stopErr  error
}

func (c *SessionController) startListening() error {
	state := c.currentState()
	if state == domain.SessionStateListening {
		return nil
	}
	s := c.active
	if s == nil || s.transport == nil || state != domain.SessionStateConnected {
		return domain.NewVoiceError(domain.ErrorKindConnection,
			fmt.Sprintf("cannot start listening while %s", state), ErrNotConnected)
	}

	p := &capturePipeline{c: c, transport: s.transport}
	stream, err := c.mic.Open(c.baseCtx, c.cfg.Capture, p.onBlock)
	if err != nil {
		verr := captureError(err)
		c.raise(verr)
		return verr
	}
	p.stream = stream
	s.capture = p
	go c.watchCapture(s, p)

	c.clearError()
	c.setState(domain.SessionStateListening)
	c.monitor.Arm(c.cfg.VoiceTimeout)
	log.Info("listening started", "session", s.id)
	return nil
}

func (c *SessionController) stopListening() error {
	s := c.active
	if s == nil {
		return nil
	}
	var err error
	if s.capture != nil {
		c.monitor.Cancel()
		c.releaseCapture(s)
		if s.transport != nil {
			err = c.send(s, domain.CommitAudio())
		}
		log.Info("listening stopped", "session", s.id)
	}
	if c.currentState() == domain.SessionStateListening {
		c.setState(domain.SessionStateConnected)
	}
	return err
}

// releaseCapture stops the microphone without committing audio.
func (c *SessionController) releaseCapture(s *activeSession) {
	p := s.capture
	if p == nil {
		return
	}
	s.capture = nil
	if err := p.stop(); err != nil {
		log.Warn("microphone stop failed", "err", err)
	}
	c.level.Store(0)
}

func (c *SessionController) watchCapture(s *activeSession, p *capturePipeline) {
	err := p.stream.Wait()
	if p.stopped.Load() {
		return
	}
	c.post(func() { c.handleCaptureEnded(s, p, err) })
}

func (c *SessionController) handleCaptureEnded(s *activeSession, p *capturePipeline, err error) {
	if c.active != s || s.capture != p {
		return
	}
	s.capture = nil
	_ = p.stop()
	c.raise(domain.NewVoiceError(domain.ErrorKindUnknown, "microphone stream ended", err))
	if c.currentState() == domain.SessionStateListening {
		c.setState(domain.SessionStateConnected)
	}
}

func (p *capturePipeline) onBlock(samples []float32) {
	if p.stopped.Load() {
		return
	}
	c := p.c

	level := audio.Level(samples)
	c.level.Store(math.Float64bits(level))
	if c.levelLimiter.Allow() {
		c.events.Level(level)
	}

	if c.currentState() == domain.SessionStateListening {
		frame := domain.AudioFrame{Seq: p.seq.Add(1), Samples: audio.Float32ToPCM16(samples)}
		if err := p.transport.Send(domain.AppendAudio(frame)); err != nil {
			c.metrics.FrameDropped()
			if c.sendLimiter.Allow() {
				log.Warn("dropping microphone frame", "err", err)
			}
		} else {
			c.metrics.FrameSent()
		}
	}

	c.monitor.Observe(level)
}

func (p *capturePipeline) stop() error {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if p.stream != nil {
			p.stopErr = p.stream.Stop()
		}
	})
	return p.stopErr
}

// captureError maps a microphone open failure to the error taxonomy.
func captureError(err error) *domain.VoiceError {
	switch {
	case errors.Is(err, ports.ErrMicrophoneDenied):
		return domain.NewVoiceError(domain.ErrorKindMicDenied, "microphone access was denied", err)
	case errors.Is(err, ports.ErrMicrophoneNotFound):
		return domain.NewVoiceError(domain.ErrorKindMicNotFound, "no microphone was found", err)
	default:
		return domain.NewVoiceError(domain.ErrorKindUnknown, "failed to open microphone", err)
	}
}

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
