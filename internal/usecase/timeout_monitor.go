package usecase

import (
	"sync"
	"time"

	"tutorvoice/internal/ports"
)

type monitorPhase int

const (
	monitorDisarmed monitorPhase = iota
	monitorCounting
	monitorExpired
)

// voiceTimeoutMonitor detects prolonged silence while listening. Observe is
// called from the audio goroutine; Arm, Cancel and Expire run on the session
// goroutine. A timer fire is only actionable if Expire confirms its generation.
type voiceTimeoutMonitor struct {
	clock     ports.Clock
	threshold float64
	fire      func(gen uint64)

	mu      sync.Mutex
	phase   monitorPhase
	timeout time.Duration
	gen     uint64
	timer   ports.Timer
}

func newVoiceTimeoutMonitor(clock ports.Clock, threshold float64, fire func(gen uint64)) *voiceTimeoutMonitor {
	return &voiceTimeoutMonitor{clock: clock, threshold: threshold, fire: fire}
}

// Arm starts a countdown. A non-positive timeout disables the monitor.
func (m *voiceTimeoutMonitor) Arm(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout <= 0 {
		m.stopLocked()
		m.phase = monitorDisarmed
		return
	}
	m.timeout = timeout
	m.restartLocked()
}

// Observe restarts the countdown when level crosses the speech threshold. A
// crossing after a firing starts a new idle period.
func (m *voiceTimeoutMonitor) Observe(level float64) {
	if level <= m.threshold {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == monitorDisarmed {
		return
	}
	m.restartLocked()
}

func (m *voiceTimeoutMonitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.phase = monitorDisarmed
}

// Expire reports whether the fire for gen is still current and, if so,
// consumes it.
func (m *voiceTimeoutMonitor) Expire(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.phase != monitorCounting {
		return false
	}
	m.phase = monitorExpired
	m.timer = nil
	return true
}

func (m *voiceTimeoutMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase != monitorDisarmed
}

func (m *voiceTimeoutMonitor) restartLocked() {
	m.stopLocked()
	m.phase = monitorCounting
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.timeout, func() { m.fire(gen) })
}

func (m *voiceTimeoutMonitor) stopLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
