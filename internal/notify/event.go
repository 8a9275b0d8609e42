// Package notify carries change events out of the alphalite core: an
// in-process Bus for subscribers in the same binary, and event files in a
// shared directory (watched with fsnotify) for other processes.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/alphalite/pkg/types"
)

// EventType names what happened to a record.
type EventType string

const (
	MemoryCreated     EventType = "memory_created"
	MemoryDeleted     EventType = "memory_deleted"
	ThreadCreated     EventType = "thread_created"
	ThreadUpdated     EventType = "thread_updated"
	ThreadDeleted     EventType = "thread_deleted"
	ReminderScheduled EventType = "reminder_scheduled"
	ReminderCancelled EventType = "reminder_cancelled"
	ReminderDismissed EventType = "reminder_dismissed"
)

// Event is one change notification. Time is Unix nanoseconds.
type Event struct {
	Type EventType  `json:"type"`
	Kind types.Kind `json:"kind"`
	ID   string     `json:"id"`
	Time int64      `json:"time"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, kind types.Kind, id string) Event {
	return Event{Type: typ, Kind: kind, ID: id, Time: time.Now().UnixNano()}
}

// Publisher receives change events. Publishers must not block for long;
// the core calls them after a write has been persisted and treats failures
// as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error { return f(ctx, evt) }
