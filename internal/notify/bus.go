package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/scrypster/alphalite/internal/logging"
)

// Bus fans events out to in-process subscribers. A subscriber whose buffer
// is full misses the event; Publish never blocks.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{logger: logger, subs: make(map[int]chan Event)}
}

// Subscribe returns a channel receiving future events and a function that
// unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("notify: subscriber buffer full, dropping event", "type", evt.Type, "id", evt.ID)
		}
	}
	return nil
}
