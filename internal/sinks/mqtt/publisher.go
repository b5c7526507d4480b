package mqtt

import (
	"encoding/json"
	"strings"
	"sync"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/sinks"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

const defaultQueueSize = 128

// EventPublisher is a ports.EventSink that publishes session events as JSON
// under a topic prefix. Events are queued and sent from a worker goroutine so
// a slow broker never stalls the session. Level events are not published.
type EventPublisher struct {
	sinks.Func

	pub    Publisher
	prefix string
	queue  chan domain.Event

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped int
}

func NewEventPublisher(pub Publisher, topic string, queueSize int) *EventPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &EventPublisher{
		pub:    pub,
		prefix: strings.TrimRight(strings.TrimSpace(topic), "/"),
		queue:  make(chan domain.Event, queueSize),
	}
	p.Func = p.enqueue
	p.wg.Add(1)
	go p.run()
	return p
}

// Topic returns the topic an event type is published on.
func (p *EventPublisher) Topic(t domain.EventType) string {
	switch t {
	case domain.EventResponseText:
		return p.prefix + "/response"
	default:
		return p.prefix + "/" + string(t)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *EventPublisher) Dropped() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// Close flushes queued events and stops the worker.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *EventPublisher) enqueue(event domain.Event) {
	if event.Type == domain.EventLevel {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- event:
	default:
		p.dropped++
		if p.dropped == 1 || p.dropped%100 == 0 {
			log.Warn("event queue full, dropping", "type", string(event.Type), "dropped", p.dropped)
		}
	}
}

func (p *EventPublisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error("failed to encode event", "type", string(event.Type), "err", err)
			continue
		}
		topic := p.Topic(event.Type)
		// The latest state is retained so new subscribers see it at once.
		retained := event.Type == domain.EventState
		if err := p.pub.Publish(topic, 1, retained, payload); err != nil {
			log.Debug("publish failed", "topic", topic, "err", err)
		}
	}
}
