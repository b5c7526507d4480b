package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/ports"
)

var (
	ErrNotConnected     = errors.New("voice session is not connected")
	ErrControllerClosed = errors.New("voice controller is closed")
	ErrEmptyText        = errors.New("text message is empty")
	ErrEmptyVoice       = errors.New("voice name is empty")
)

var (
	tracer = otel.Tracer("tutorvoice/internal/usecase")
	log    = logger.With("usecase")
)

// Config controls the voice session.
type Config struct {
	Transport ports.TransportConfig
	Capture   ports.CaptureConfig
	Playback  ports.PlaybackConfig
	Reconnect ReconnectPolicy
	Voice     string

	// VoiceTimeout is how long listening may stay silent before a timeout
	// error is raised. Zero disables the monitor.
	VoiceTimeout    time.Duration
	SpeechThreshold float64
	// LevelRate caps Level events per second.
	LevelRate float64
}

// CapabilityProber reports whether voice can run on this host.
type CapabilityProber interface {
	Probe() domain.CapabilityReport
}

// Option customizes a SessionController.
type Option func(*SessionController)

func WithClock(clock ports.Clock) Option {
	return func(c *SessionController) { c.clock = clock }
}

func WithMetrics(metrics ports.Metrics) Option {
	return func(c *SessionController) { c.metrics = metrics }
}

// SessionController owns the voice session. Every state change runs on a
// single goroutine that drains inbox; transport, timer and audio callbacks
// post closures to it and public methods wait for theirs to run.
type SessionController struct {
	dialer    ports.TransportDialer
	mic       ports.Microphone
	speaker   ports.Speaker
	events    *eventDispatcher
	finalizer transcriptFinalizer
	clock     ports.Clock
	metrics   ports.Metrics
	cfg       Config
	report    domain.CapabilityReport

	baseCtx    context.Context
	cancelBase context.CancelFunc
	inbox      chan func()
	quit       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	// Owned by the session goroutine.
	active  *activeSession
	voice   string
	monitor *voiceTimeoutMonitor

	state        atomic.Value
	level        atomic.Uint64
	levelLimiter *rate.Limiter
	sendLimiter  *rate.Limiter

	statusMu sync.RWMutex
	status   domain.Status
}

func NewSessionController(
	dialer ports.TransportDialer,
	mic ports.Microphone,
	speaker ports.Speaker,
	prober CapabilityProber,
	rules ports.TranscriptRules,
	events ports.EventSink,
	cfg Config,
	opts ...Option,
) (*SessionController, error) {
	if err := cfg.Reconnect.Validate(); err != nil {
		return nil, err
	}
	cfg.Capture = withCaptureDefaults(cfg.Capture)
	cfg.Playback = withPlaybackDefaults(cfg.Playback)
	if cfg.LevelRate <= 0 {
		cfg.LevelRate = 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		dialer:       dialer,
		mic:          mic,
		speaker:      speaker,
		events:       newEventDispatcher(events),
		finalizer:    newTranscriptFinalizer(rules),
		cfg:          cfg,
		baseCtx:      ctx,
		cancelBase:   cancel,
		inbox:        make(chan func(), 64),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		voice:        strings.TrimSpace(cfg.Voice),
		levelLimiter: rate.NewLimiter(rate.Limit(cfg.LevelRate), 1),
		sendLimiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	c.monitor = newVoiceTimeoutMonitor(c.clock, cfg.SpeechThreshold, func(gen uint64) {
		c.post(func() { c.handleVoiceTimeout(gen) })
	})

	c.report = domain.CapabilityReport{Supported: true}
	if prober != nil {
		c.report = prober.Probe()
	}
	if !c.report.Supported {
		log.Warn("voice capability probe failed", "reason", c.report.Reason)
	}

	c.state.Store(domain.SessionStateIdle)
	c.status.Voice = c.voice

	go c.run()
	return c, nil
}

// Connect opens a voice session, restarting any session already active.
// Dialing completes asynchronously; watch StateChanged for Connected.
func (c *SessionController) Connect(ctx context.Context) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.connect() }); callErr != nil {
		return callErr
	}
	return err
}

// Disconnect tears the session down. It is safe in any state.
func (c *SessionController) Disconnect(ctx context.Context) error {
	return c.call(ctx, c.disconnect)
}

// StartListening opens the microphone and begins streaming audio.
func (c *SessionController) StartListening(ctx context.Context) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.startListening() }); callErr != nil {
		return callErr
	}
	return err
}

// StopListening releases the microphone and commits the buffered audio.
func (c *SessionController) StopListening(ctx context.Context) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.stopListening() }); callErr != nil {
		return callErr
	}
	return err
}

// SendText sends a typed message to the tutor.
func (c *SessionController) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	var err error
	if callErr := c.call(ctx, func() { err = c.send(c.active, domain.SendText(text)) }); callErr != nil {
		return callErr
	}
	return err
}

// SetVoice changes the assistant voice. The new voice applies to the live
// session if one is open, and to every later session.
func (c *SessionController) SetVoice(ctx context.Context, voice string) error {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return ErrEmptyVoice
	}
	var err error
	if callErr := c.call(ctx, func() { err = c.setVoice(voice) }); callErr != nil {
		return callErr
	}
	return err
}

// ClearError acknowledges the current error and leaves Errored. A session
// the server never confirmed goes back to Connecting to wait for it.
func (c *SessionController) ClearError(ctx context.Context) error {
	return c.call(ctx, func() {
		c.clearError()
		if c.currentState() != domain.SessionStateErrored {
			return
		}
		if s := c.active; s != nil && !s.ready {
			c.setState(domain.SessionStateConnecting)
			return
		}
		c.setState(domain.SessionStateConnected)
	})
}

// Close disconnects and stops the session goroutine.
func (c *SessionController) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Disconnect(ctx)
		close(c.quit)
		<-c.done
		c.cancelBase()
		c.events.close()
	})
	return nil
}

// State returns the current session state.
func (c *SessionController) State() domain.SessionState {
	return c.currentState()
}

// Level returns the latest microphone level in [0, 1].
func (c *SessionController) Level() float64 {
	return float64FromBits(c.level.Load())
}

// Status returns a snapshot of the session observables.
func (c *SessionController) Status() domain.Status {
	c.statusMu.RLock()
	st := c.status
	c.statusMu.RUnlock()

	state := c.currentState()
	st.State = state
	st.Connected = state.HasTransport()
	st.Listening = state == domain.SessionStateListening
	st.Speaking = state == domain.SessionStateSpeaking
	st.Level = c.Level()
	return st
}

// Capability returns the probe result taken at construction.
func (c *SessionController) Capability() domain.CapabilityReport {
	return c.report
}

func (c *SessionController) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.quit:
			return
		}
	}
}

// call runs fn on the session goroutine and waits for it to finish.
func (c *SessionController) call(ctx context.Context, fn func()) error {
	select {
	case <-c.done:
		return ErrControllerClosed
	default:
	}
	reply := make(chan struct{})
	job := func() {
		defer close(reply)
		fn()
	}
	select {
	case c.inbox <- job:
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It reports false once the controller has
// stopped.
func (c *SessionController) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *SessionController) currentState() domain.SessionState {
	return c.state.Load().(domain.SessionState)
}

// setState publishes next. Leaving Listening always releases the
// microphone and disarms the timeout monitor.
func (c *SessionController) setState(next domain.SessionState) {
	prev := c.currentState()
	if prev == next {
		return
	}
	if prev == domain.SessionStateListening {
		c.monitor.Cancel()
		if s := c.active; s != nil {
			c.releaseCapture(s)
		}
	}
	c.state.Store(next)
	c.metrics.StateTransition(prev, next)
	log.Debug("voice session state changed", "from", string(prev), "to", string(next))
	c.events.StateChanged(next)
}

func (c *SessionController) publish(update func(st *domain.Status)) {
	c.statusMu.Lock()
	update(&c.status)
	c.statusMu.Unlock()
}

func (c *SessionController) raise(verr *domain.VoiceError) {
	c.publish(func(st *domain.Status) { st.Error = verr })
	c.metrics.VoiceError(verr.Kind, verr.Recoverable)
	log.Warn("voice error", "kind", string(verr.Kind), "recoverable", verr.Recoverable, "err", verr)
	c.events.VoiceError(verr)
}

func (c *SessionController) clearError() {
	c.publish(func(st *domain.Status) { st.Error = nil })
}

func (c *SessionController) setVoice(voice string) error {
	c.voice = voice
	c.publish(func(st *domain.Status) { st.Voice = voice })
	s := c.active
	if s == nil {
		return nil
	}
	s.voice = voice
	if s.transport == nil {
		// Applied by the handshake on the next dial.
		return nil
	}
	return c.send(s, domain.SetVoice(voice))
}

func (c *SessionController) send(s *activeSession, msg domain.ControlMessage) error {
	if s == nil || s.transport == nil {
		return domain.NewVoiceError(domain.ErrorKindConnection, "voice session is not connected", ErrNotConnected)
	}
	if err := s.transport.Send(msg); err != nil {
		log.Warn("voice transport send failed", "type", string(msg.Type), "err", err)
		return domain.NewVoiceError(domain.ErrorKindConnection, fmt.Sprintf("failed to send %s", msg.Type), err)
	}
	return nil
}

func (c *SessionController) handleVoiceTimeout(gen uint64) {
	if !c.monitor.Expire(gen) {
		return
	}
	if c.currentState() != domain.SessionStateListening {
		return
	}
	c.raise(domain.NewVoiceError(domain.ErrorKindTimeout, "no speech detected", nil))
}
