package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrInvalidReconnectPolicy = errors.New("invalid reconnect policy")

// ReconnectPolicy bounds automatic reconnection. Delays follow
// BaseDelay × 2^attempts with no jitter.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

func (p ReconnectPolicy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be positive", ErrInvalidReconnectPolicy)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidReconnectPolicy)
	}
	return nil
}

// Delay returns the wait before the reconnect that follows attempt failures.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(uint64(1)<<min(attempt, 30))
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Delay(p.MaxAttempts)
	b.Reset()
	return b
}
