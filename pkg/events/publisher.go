package events

import (
	"context"
	"sync"
	"time"

	"libraryapi/pkg/domain"
)

// Type names a book event.
type Type string

const (
	BookCreated  Type = "book.created"
	BookUpdated  Type = "book.updated"
	BookDeleted  Type = "book.deleted"
	BookBorrowed Type = "book.borrowed"
	BookReturned Type = "book.returned"
)

// Event describes a persisted change to a book.
type Event struct {
	Type       Type              `json:"type"`
	BookID     string            `json:"bookId"`
	Status     domain.BookStatus `json:"status,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// envelope is the wire form shared by every broker.
type envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

func wrap(e Event) envelope {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return envelope{Type: e.Type, Timestamp: ts, Payload: e}
}

// Publisher delivers book events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher records events in order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher builds an empty recorder.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records e.
func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
