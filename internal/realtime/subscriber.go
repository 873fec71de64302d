package realtime

import (
	"sync"

	"classroom/internal/events"
)

// Subscriber is one connected observer of a room occurrence. The send
// channel is never closed by broadcasters; done signals the pumps to stop
// and Close is idempotent.
type Subscriber struct {
	id   string
	send chan events.Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber creates a subscriber with a bounded send queue.
func NewSubscriber(id string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Subscriber{
		id:   id,
		send: make(chan events.Event, queueSize),
		done: make(chan struct{}),
	}
}

// ID returns the connection identity.
func (s *Subscriber) ID() string { return s.id }

// Events is the delivery channel read by the write pump.
func (s *Subscriber) Events() <-chan events.Event { return s.send }

// Done is closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close signals shutdown. It does not close the send channel, keeping
// concurrent broadcasts safe.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// offer enqueues without blocking; reports false when the queue is full.
func (s *Subscriber) offer(e events.Event) bool {
	select {
	case s.send <- e:
		return true
	default:
		return false
	}
}
