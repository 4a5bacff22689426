package fiber

import (
	"errors"
	"sync"
)

// ErrNoSuchFiber is returned by Send when the target fiber is unknown
// (never existed, or already reaped).
var ErrNoSuchFiber = errors.New("fiber: no such fiber")

// Message is an opaque value routed from one fiber to another.
type Message struct {
	From FiberId
	To   FiberId
	Body any
}

// MessageCenter delivers messages to fibers by id exactly once. Messages
// to a Running or New fiber are appended to its deferred queue and drained
// at its next scheduling point; messages to a Sleeping fiber wake it.
// Messages to an unknown fiber are dropped.
type MessageCenter struct {
	s *Scheduler

	mu      sync.Mutex
	deferred map[FiberId][]Message
}

// NewMessageCenter returns a MessageCenter routing through s.
func NewMessageCenter(s *Scheduler) *MessageCenter {
	return &MessageCenter{s: s, deferred: make(map[FiberId][]Message)}
}

// Send delivers body from "from" to the fiber "to". Messages from a single
// sender to a single target are delivered in send order.
func (m *MessageCenter) Send(from, to FiberId, body any) error {
	m.s.mu.Lock()
	_, known := m.s.fibers[to]
	_, sleeping := m.s.sleeping[to]
	m.s.mu.Unlock()

	if !known && !sleeping {
		return ErrNoSuchFiber
	}

	m.mu.Lock()
	m.deferred[to] = append(m.deferred[to], Message{From: from, To: to, Body: body})
	m.mu.Unlock()

	if sleeping {
		m.s.Wakeup(to)
	}
	return nil
}

// Drain returns and clears every message queued for id. A fiber calls this
// synchronously at its next scheduling point before continuing its work.
func (m *MessageCenter) Drain(id FiberId) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.deferred[id]
	delete(m.deferred, id)
	return msgs
}
