// Package events provides the outbound event bus. The engine only
// publishes; delivery to audit logs, webhooks, or UIs belongs to the
// subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trafego/trafegodns/types"
)

// EventType describes the kind of record event.
type EventType string

const (
	EventRecordCreated  EventType = "record.created"
	EventRecordUpdated  EventType = "record.updated"
	EventRecordDeleted  EventType = "record.deleted"
	EventRecordOrphaned EventType = "record.orphaned"
)

// Event is one outbound notification about a managed record.
type Event struct {
	Type       EventType         `json:"type"`
	RecordType types.RecordType  `json:"recordType"`
	Hostname   string            `json:"hostname"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
}

// Bus is a buffered fan-out publisher. Publish never blocks: if a
// subscriber's channel is full the event is dropped for that
// subscriber and a warning is logged.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives published events. The
// channel is closed when the provided context is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s == ch {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

// Publish sends the event to all subscribers without blocking.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			slog.Warn("event subscriber channel full, dropping event",
				"type", event.Type, "hostname", event.Hostname)
		}
	}
}
