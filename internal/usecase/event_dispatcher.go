package usecase

import (
	"context"
	"sync"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/ports"
)

// eventDispatcher delivers session callbacks in order on its own goroutine,
// so a handler may call back into the controller. Level is forwarded
// directly on the calling audio goroutine.
type eventDispatcher struct {
	sink ports.EventSink

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newEventDispatcher(sink ports.EventSink) *eventDispatcher {
	d := &eventDispatcher{sink: sink, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *eventDispatcher) enqueue(fn func()) {
	if d.sink == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

func (d *eventDispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}

// flush waits until every callback queued before it has been delivered.
func (d *eventDispatcher) flush(ctx context.Context) error {
	reached := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.queue = append(d.queue, func() { close(reached) })
	d.cond.Signal()
	d.mu.Unlock()

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting callbacks. Queued ones are still delivered; close
// does not wait for them, since it may run inside a callback.
func (d *eventDispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *eventDispatcher) StateChanged(state domain.SessionState) {
	d.enqueue(func() { d.sink.StateChanged(state) })
}

func (d *eventDispatcher) Transcript(text string, isFinal bool) {
	d.enqueue(func() { d.sink.Transcript(text, isFinal) })
}

func (d *eventDispatcher) ResponseText(delta string) {
	d.enqueue(func() { d.sink.ResponseText(delta) })
}

func (d *eventDispatcher) Level(level float64) {
	if d.sink != nil {
		d.sink.Level(level)
	}
}

func (d *eventDispatcher) VoiceError(err *domain.VoiceError) {
	d.enqueue(func() { d.sink.VoiceError(err) })
}

func (d *eventDispatcher) Fallback(reason string) {
	d.enqueue(func() { d.sink.Fallback(reason) })
}
