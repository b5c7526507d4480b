package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

var errFakeClosed = errors.New("fake transport closed")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeTransport struct {
	events    chan domain.ControlMessage
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []domain.ControlMessage
	sendErr error
	closed  bool
	byUs    bool
	err     error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan domain.ControlMessage, 64),
		done:   make(chan struct{}),
	}
}

func (f *fakeTransport) Send(msg domain.ControlMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errFakeClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Events() <-chan domain.ControlMessage { return f.events }

func (f *fakeTransport) Wait() error {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Close() error {
	f.finish(nil, true)
	return nil
}

// Drop simulates the server side going away.
func (f *fakeTransport) Drop(err error) {
	f.finish(err, false)
}

func (f *fakeTransport) finish(err error, byUs bool) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.byUs = byUs
		f.err = err
		f.mu.Unlock()
		close(f.events)
		close(f.done)
	})
}

func (f *fakeTransport) Push(msg domain.ControlMessage) {
	f.events <- msg
}

func (f *fakeTransport) Sent() []domain.ControlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ControlMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) SentTypes() []domain.MessageType {
	var out []domain.MessageType
	for _, msg := range f.Sent() {
		out = append(out, msg.Type)
	}
	return out
}

func (f *fakeTransport) ClosedByUs() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed && f.byUs
}

type dialResult struct {
	transport *fakeTransport
	err       error
}

type fakeDialer struct {
	mu         sync.Mutex
	results    []dialResult
	transports []*fakeTransport
	calls      int
	configs    []ports.TransportConfig
	gate       chan struct{}
}

// Dial ignores cancellation while held, like a dialer whose handshake has
// already left the socket.
func (f *fakeDialer) Dial(_ context.Context, cfg ports.TransportConfig) (ports.Transport, error) {
	f.mu.Lock()
	f.calls++
	f.configs = append(f.configs, cfg)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	result := dialResult{transport: newFakeTransport()}
	if len(f.results) > 0 {
		result = f.results[0]
		f.results = f.results[1:]
	}
	if result.err != nil {
		return nil, result.err
	}
	f.transports = append(f.transports, result.transport)
	return result.transport, nil
}

// Hold blocks dials until the returned release func runs.
func (f *fakeDialer) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *fakeDialer) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.results = append(f.results, dialResult{err: err})
	}
}

func (f *fakeDialer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDialer) Transports() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeTransport, len(f.transports))
	copy(out, f.transports)
	return out
}

type fakeStream struct {
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	stopped bool
	err     error
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan struct{})}
}

func (f *fakeStream) Stop() error {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeStream) Wait() error {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	return f.err
}

// End simulates the device going away without Stop.
func (f *fakeStream) End(err error) {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeStream) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeMic struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
	onBlock func([]float32)
	cfg     ports.CaptureConfig
}

func (f *fakeMic) Open(_ context.Context, cfg ports.CaptureConfig, onBlock func([]float32)) (ports.CaptureStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stream := newFakeStream()
	f.streams = append(f.streams, stream)
	f.onBlock = onBlock
	f.cfg = cfg
	return stream, nil
}

func (f *fakeMic) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMic) Emit(samples []float32) {
	f.mu.Lock()
	onBlock := f.onBlock
	f.mu.Unlock()
	if onBlock != nil {
		onBlock(samples)
	}
}

func (f *fakeMic) Stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeMic) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

type fakeSink struct {
	mu     sync.Mutex
	writes [][]float32
	err    error
	closed bool
}

func (f *fakeSink) Write(samples []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, samples)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeSink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSpeaker struct {
	mu      sync.Mutex
	openErr error
	sinkErr error
	sinks   []*fakeSink
}

func (f *fakeSpeaker) Open(_ context.Context, _ ports.PlaybackConfig) (ports.PlaybackSink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	sink := &fakeSink{err: f.sinkErr}
	f.sinks = append(f.sinks, sink)
	return sink, nil
}

func (f *fakeSpeaker) Sinks() []*fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeSink, len(f.sinks))
	copy(out, f.sinks)
	return out
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Fire runs the callback unless the timer was stopped.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeTimer, len(c.timers))
	copy(out, c.timers)
	return out
}

func (c *fakeClock) WaitForTimer(t *testing.T, n int) *fakeTimer {
	t.Helper()
	waitFor(t, "timer", func() bool { return len(c.Timers()) >= n })
	return c.Timers()[n-1]
}

type fakeRules struct {
	transform string
	err       error
	calls     int
}

func (f *fakeRules) Apply(text string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.transform == "" {
		return text, nil
	}
	return f.transform, nil
}

type fakeProber struct {
	report domain.CapabilityReport
}

func (f fakeProber) Probe() domain.CapabilityReport { return f.report }

type fakeEventSink struct {
	mu          sync.Mutex
	states      []domain.SessionState
	transcripts []string
	responses   []string
	levels      []float64
	errors      []*domain.VoiceError
	fallbacks   []string

	// onError runs after the error is recorded, outside the lock.
	onError func(*domain.VoiceError)
}

func (f *fakeEventSink) StateChanged(state domain.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeEventSink) Transcript(text string, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) ResponseText(delta string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, delta)
}

func (f *fakeEventSink) Level(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
}

func (f *fakeEventSink) VoiceError(err *domain.VoiceError) {
	f.mu.Lock()
	f.errors = append(f.errors, err)
	hook := f.onError
	f.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func (f *fakeEventSink) setOnError(hook func(*domain.VoiceError)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = hook
}

func (f *fakeEventSink) Fallback(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, reason)
}

func (f *fakeEventSink) snapshotStates() []domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SessionState(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []*domain.VoiceError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.VoiceError(nil), f.errors...)
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

func (f *fakeEventSink) snapshotFallbacks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fallbacks...)
}

func (f *fakeEventSink) levelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.levels)
}

type harness struct {
	ctrl    *SessionController
	dialer  *fakeDialer
	mic     *fakeMic
	speaker *fakeSpeaker
	events  *fakeEventSink
	clock   *fakeClock
	rules   *fakeRules
}

func newHarness(t *testing.T, prober CapabilityProber, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		dialer:  &fakeDialer{},
		mic:     &fakeMic{},
		speaker: &fakeSpeaker{},
		events:  &fakeEventSink{},
		clock:   &fakeClock{},
		rules:   &fakeRules{},
	}
	cfg := Config{
		Transport:       ports.TransportConfig{URL: "wss://voice.test/realtime"},
		Reconnect:       ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3},
		Voice:           "alloy",
		SpeechThreshold: 0.1,
		LevelRate:       1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ctrl, err := NewSessionController(h.dialer, h.mic, h.speaker, prober, h.rules, h.events, cfg, WithClock(h.clock))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	h.ctrl = ctrl
	return h
}

func (h *harness) waitState(t *testing.T, want domain.SessionState) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return h.ctrl.State() == want })
}

// connectReady connects and completes the handshake on the first transport.
func (h *harness) connectReady(t *testing.T) *fakeTransport {
	t.Helper()
	dialed := len(h.dialer.Transports())
	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	waitFor(t, "dial", func() bool { return len(h.dialer.Transports()) > dialed })
	tr := h.dialer.Transports()[dialed]
	waitFor(t, "handshake", func() bool { return len(tr.Sent()) > 0 })
	tr.Push(domain.SessionReady())
	h.waitState(t, domain.SessionStateConnected)
	return tr
}

// barrier waits until everything already queued on the session goroutine
// ran and the events it raised reached the sink.
func (h *harness) barrier(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.call(ctx, func() {}); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if err := h.ctrl.events.flush(ctx); err != nil {
		t.Fatalf("barrier flush: %v", err)
	}
}

// lastPlayed reads the sequence number of the last frame the playback
// pipeline wrote.
func (h *harness) lastPlayed(t *testing.T) uint64 {
	t.Helper()
	var seq uint64
	h.barrierCall(t, func() {
		if s := h.ctrl.active; s != nil && s.playback != nil {
			seq = s.playback.LastPlayed()
		}
	})
	return seq
}

func (h *harness) barrierCall(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.call(ctx, fn); err != nil {
		t.Fatalf("call: %v", err)
	}
}

func loudBlock() []float32 {
	block := make([]float32, domain.FrameSamples)
	for i := range block {
		block[i] = 0.5
	}
	return block
}

func quietBlock() []float32 {
	return make([]float32, domain.FrameSamples)
}
