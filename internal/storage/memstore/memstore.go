// Package memstore is an in-process storage.Store. It backs tests and
// ephemeral runs (storage.engine "memory"); nothing survives Close.
package memstore

import (
	"context"
	"sync"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// Store implements storage.Store in memory.
type Store struct {
	memories  *collection[types.Memory]
	threads   *collection[types.ChatThread]
	reminders *collection[types.Reminder]

	mu       sync.RWMutex
	settings map[string]string
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		memories: newCollection(types.KindMemory,
			func(m *types.Memory) string { return m.ID },
			(*types.Memory).Validate,
			(*types.Memory).Clone),
		threads: newCollection(types.KindThread,
			func(t *types.ChatThread) string { return t.ID },
			(*types.ChatThread).Validate,
			(*types.ChatThread).Clone),
		reminders: newCollection(types.KindReminder,
			func(r *types.Reminder) string { return r.ID },
			(*types.Reminder).Validate,
			(*types.Reminder).Clone),
		settings: make(map[string]string),
	}
}

func (s *Store) Memories() storage.MemoryStore    { return s.memories }
func (s *Store) Threads() storage.ThreadStore     { return s.threads }
func (s *Store) Reminders() storage.ReminderStore { return s.reminders }
func (s *Store) Close() error                     { return nil }

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// collection stores deep copies so callers can never mutate stored state.
type collection[T any] struct {
	kind     types.Kind
	id       func(*T) string
	validate func(*T) error
	clone    func(*T) *T

	mu      sync.RWMutex
	records map[string]*T
	order   []string
}

func newCollection[T any](kind types.Kind, id func(*T) string, validate func(*T) error, clone func(*T) *T) *collection[T] {
	return &collection[T]{
		kind:     kind,
		id:       id,
		validate: validate,
		clone:    clone,
		records:  make(map[string]*T),
	}
}

func (c *collection[T]) Put(_ context.Context, record *T) error {
	if err := c.validate(record); err != nil {
		return storage.Invalid(err, c.kind)
	}

	id := c.id(record)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		c.order = append(c.order, id)
	}
	c.records[id] = c.clone(record)
	return nil
}

func (c *collection[T]) Get(_ context.Context, id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	if !ok {
		return nil, storage.NotFound(c.kind, id)
	}
	return c.clone(r), nil
}

func (c *collection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return storage.NotFound(c.kind, id)
	}
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *collection[T]) List(_ context.Context, opts storage.ListOptions[T]) ([]*T, error) {
	c.mu.RLock()
	out := make([]*T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.clone(c.records[id]))
	}
	c.mu.RUnlock()
	return opts.Apply(out), nil
}

func (c *collection[T]) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}
