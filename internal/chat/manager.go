// Package chat manages append-only conversation threads.
package chat

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/alphalite/internal/keymutex"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// Manager creates threads and appends messages to them. Appends to one
// thread are serialized; different threads proceed in parallel.
type Manager struct {
	threads   storage.ThreadStore
	locks     *keymutex.KeyMutex
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets where thread events go.
func WithPublisher(p notify.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a manager over threads.
func NewManager(threads storage.ThreadStore, opts ...Option) *Manager {
	m := &Manager{
		threads:   threads,
		locks:     keymutex.New(0),
		publisher: notify.Nop{},
		logger:    logging.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.publisher == nil {
		m.publisher = notify.Nop{}
	}
	return m
}

// CreateThread stores a new empty thread.
func (m *Manager) CreateThread(ctx context.Context, title string, tags []string) (*types.ChatThread, error) {
	now := m.now().UTC()
	t := &types.ChatThread{
		ID:        m.newID(),
		Title:     strings.TrimSpace(title),
		Tags:      types.NormalizeTags(tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if err := m.threads.Put(ctx, t); err != nil {
		return nil, err
	}
	m.publish(ctx, notify.ThreadCreated, t.ID)
	return t, nil
}

// AddMessage appends msg to the thread and returns the updated thread.
// A zero timestamp means now. A timestamp older than the thread's
// UpdatedAt is raised to it, so append order is the order of calls and
// UpdatedAt never goes back. Returns storage.ErrNotFound for an unknown
// thread; on a failed write the stored thread is unchanged.
func (m *Manager) AddMessage(ctx context.Context, threadID string, msg types.Message) (*types.ChatThread, error) {
	if err := msg.Validate(); err != nil {
		return nil, storage.Invalid(err, types.KindThread)
	}

	var updated *types.ChatThread
	err := m.locks.With(threadID, func() error {
		current, err := m.threads.Get(ctx, threadID)
		if err != nil {
			return err
		}

		if msg.Timestamp.IsZero() {
			msg.Timestamp = m.now()
		}
		msg.Timestamp = msg.Timestamp.UTC()
		if msg.Timestamp.Before(current.UpdatedAt) {
			msg.Timestamp = current.UpdatedAt
		}

		next := current.Clone()
		next.Messages = append(next.Messages, msg)
		next.UpdatedAt = msg.Timestamp
		if err := m.threads.Put(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(ctx, notify.ThreadUpdated, threadID)
	return updated, nil
}

// DeleteThread removes the thread with its messages. Deleting an unknown
// thread is a no-op.
func (m *Manager) DeleteThread(ctx context.Context, id string) error {
	err := m.locks.With(id, func() error {
		return m.threads.Delete(ctx, id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.publish(ctx, notify.ThreadDeleted, id)
	return nil
}

// GetThread returns one thread or storage.ErrNotFound.
func (m *Manager) GetThread(ctx context.Context, id string) (*types.ChatThread, error) {
	return m.threads.Get(ctx, id)
}

// ListThreads returns every thread, most recently updated first.
func (m *Manager) ListThreads(ctx context.Context) ([]*types.ChatThread, error) {
	return m.threads.List(ctx, storage.ListOptions[types.ChatThread]{OrderBy: byRecency})
}

// ThreadsWithTag returns the threads carrying tag, most recent first.
func (m *Manager) ThreadsWithTag(ctx context.Context, tag string) ([]*types.ChatThread, error) {
	tag = strings.TrimSpace(tag)
	return m.threads.List(ctx, storage.ListOptions[types.ChatThread]{
		Where:   func(t *types.ChatThread) bool { return t.HasTag(tag) },
		OrderBy: byRecency,
	})
}

func byRecency(a, b *types.ChatThread) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (m *Manager) publish(ctx context.Context, typ notify.EventType, id string) {
	if err := m.publisher.Publish(ctx, notify.NewEvent(typ, types.KindThread, id)); err != nil {
		m.logger.Warn("chat: failed to publish event", "type", typ, "id", id, "error", err)
	}
}
