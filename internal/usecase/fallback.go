package usecase

import (
	"tutorvoice/internal/domain"
)

// shouldFallback decides whether voice must give way to text mode.
func shouldFallback(report domain.CapabilityReport, attemptsExhausted bool) bool {
	return !report.Supported || attemptsExhausted
}

// enterFallback tears down any live session and parks the controller in
// Fallback. Only a new Connect leaves it.
func (c *SessionController) enterFallback(reason string, verr *domain.VoiceError) {
	if s := c.active; s != nil {
		c.teardown(s)
		c.active = nil
	}
	c.setState(domain.SessionStateFallback)
	if verr != nil {
		c.raise(verr)
	}
	c.metrics.Fallback(reason)
	log.Warn("voice unavailable, falling back to text", "reason", reason)
	c.events.Fallback(reason)
}
