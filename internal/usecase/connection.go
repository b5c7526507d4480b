package usecase

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

func (c *SessionController) connect() error {
	if previous := c.active; previous != nil {
		log.Info("restarting voice session", "session", previous.id)
		c.teardown(previous)
		c.active = nil
	}
	c.clearError()

	if shouldFallback(c.report, false) {
		verr := domain.NewVoiceError(domain.ErrorKindUnsupported, c.report.Reason, nil)
		c.enterFallback(c.report.Reason, verr)
		return verr
	}

	s := newActiveSession(c.voice, c.cfg.Reconnect)
	c.active = s
	c.metrics.SessionOpened()
	c.publish(func(st *domain.Status) {
		st.SessionID = s.id
		st.Voice = s.voice
		st.ReconnectAttempts = 0
		st.LastTranscript = ""
		st.ResponseText = ""
	})
	log.Info("voice session connecting", "session", s.id, "voice", s.voice)
	c.setState(domain.SessionStateConnecting)
	c.dial(s)
	return nil
}

func (c *SessionController) disconnect() {
	s := c.active
	if s == nil {
		c.monitor.Cancel()
		return
	}
	c.teardown(s)
	c.active = nil
	if c.currentState() != domain.SessionStateFallback {
		c.setState(domain.SessionStateIdle)
	}
	log.Info("voice session disconnected", "session", s.id)
}

// teardown releases everything s holds. closing is raised first so that
// closes triggered below are not mistaken for drops.
func (c *SessionController) teardown(s *activeSession) {
	s.closing = true
	s.transportGen++
	s.reconnectGen++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	c.monitor.Cancel()
	c.releaseCapture(s)
	if s.playback != nil {
		s.playback.Close()
		s.playback = nil
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			log.Debug("voice transport close", "err", err)
		}
		s.transport = nil
	}
	c.metrics.SessionClosed()
}

func (c *SessionController) dial(s *activeSession) {
	if s.dialCancel != nil {
		s.dialCancel()
	}
	s.transportGen++
	gen := s.transportGen
	ctx, cancel := context.WithCancel(c.baseCtx)
	s.dialCancel = cancel

	cfg := c.cfg.Transport
	sessionID := s.id
	attempt := s.attempts
	go func() {
		ctx, span := tracer.Start(ctx, "voice.dial", trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("reconnect.attempt", attempt),
		))
		t, err := c.dialer.Dial(ctx, cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dial failed")
		}
		span.End()

		if !c.post(func() { c.handleDialResult(s, gen, t, err) }) && t != nil {
			_ = t.Close()
		}
	}()
}

func (c *SessionController) handleDialResult(s *activeSession, gen uint64, t ports.Transport, err error) {
	if c.active != s || !s.current(gen) {
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if err != nil {
		log.Warn("voice transport dial failed", "session", s.id, "attempt", s.attempts, "err", err)
		c.handleUnexpectedClose(s, err)
		return
	}

	s.transport = t
	s.ready = false
	go c.forward(s, gen, t)
	if err := t.Send(domain.Handshake(s.voice)); err != nil {
		log.Warn("voice handshake send failed", "session", s.id, "err", err)
	}
}

// forward relays inbound messages in order, then reports the close.
func (c *SessionController) forward(s *activeSession, gen uint64, t ports.Transport) {
	for msg := range t.Events() {
		if !c.post(func() { c.handleInbound(s, gen, msg) }) {
			_ = t.Close()
			return
		}
	}
	err := t.Wait()
	c.post(func() { c.handleTransportClosed(s, gen, err) })
}

func (c *SessionController) handleTransportClosed(s *activeSession, gen uint64, err error) {
	if c.active != s || !s.current(gen) {
		return
	}
	s.transport = nil
	if err != nil {
		log.Warn("voice transport dropped", "session", s.id, "err", err)
	} else {
		log.Info("voice transport closed by server", "session", s.id)
	}
	c.handleUnexpectedClose(s, err)
}

// handleUnexpectedClose schedules a reconnect with exponential backoff or,
// once the attempt budget is spent, falls back to text mode.
func (c *SessionController) handleUnexpectedClose(s *activeSession, cause error) {
	state := c.currentState()
	if state == domain.SessionStateIdle || state == domain.SessionStateFallback {
		return
	}

	if shouldFallback(c.report, s.attempts >= c.cfg.Reconnect.MaxAttempts) {
		verr := &domain.VoiceError{
			Kind:        domain.ErrorKindConnection,
			Message:     fmt.Sprintf("connection lost after %d reconnect attempts", s.attempts),
			Recoverable: false,
			Err:         cause,
		}
		c.enterFallback("reconnect attempts exhausted", verr)
		return
	}

	delay := s.backoff.NextBackOff()
	s.attempts++
	attempts := s.attempts
	c.publish(func(st *domain.Status) { st.ReconnectAttempts = attempts })
	c.setState(domain.SessionStateReconnecting)
	c.metrics.ReconnectScheduled(attempts, delay)
	log.Info("scheduling voice reconnect", "session", s.id, "attempt", attempts, "delay", delay.String())

	s.reconnectGen++
	rg := s.reconnectGen
	s.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.post(func() { c.handleReconnectDue(s, rg) })
	})
}

func (c *SessionController) handleReconnectDue(s *activeSession, rg uint64) {
	if c.active != s || s.closing || rg != s.reconnectGen {
		return
	}
	s.reconnectTimer = nil
	c.setState(domain.SessionStateConnecting)
	c.dial(s)
}
