package api

import (
	"sync"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/sinks"
)

// Broadcaster is a ports.EventSink that fans events out to stream
// subscribers. Slow subscribers lose events rather than stall the session.
type Broadcaster struct {
	sinks.Func

	mu     sync.RWMutex
	subs   map[chan domain.Event]struct{}
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	b := &Broadcaster{subs: make(map[chan domain.Event]struct{}), buffer: buffer}
	b.Func = b.broadcast
	return b
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) broadcast(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
