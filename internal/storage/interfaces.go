// Package storage defines the keyed record store shared by the alphalite
// core. Memories, chat threads and reminders live in disjoint collections
// with the same small CRUD contract; engines (sqlite, postgres, memstore)
// implement it.
package storage

import (
	"context"

	"github.com/scrypster/alphalite/pkg/types"
)

// Collection is the CRUD contract for one record kind.
//
// Put is an upsert and is atomic per record: a concurrent reader sees either
// the previous version or the new one, never a mix. Writes to one collection
// are serialized by the engine.
type Collection[T any] interface {
	// Put creates or replaces the record with the same ID.
	Put(ctx context.Context, record *T) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*T, error)

	// Delete removes the record. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// List returns records matching opts. Without opts.OrderBy records come
	// back in insertion order.
	List(ctx context.Context, opts ListOptions[T]) ([]*T, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// MemoryStore holds Memory records.
type MemoryStore interface {
	Collection[types.Memory]
}

// ThreadStore holds ChatThread records, each with its messages inline.
// Deleting a thread removes its messages with it.
type ThreadStore interface {
	Collection[types.ChatThread]
}

// ReminderStore holds Reminder records.
type ReminderStore interface {
	Collection[types.Reminder]
}

// SettingsStore persists small key/value settings such as the pinned
// embedding dimension.
type SettingsStore interface {
	// GetSetting returns the value for key or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting stores value under key (upsert).
	SetSetting(ctx context.Context, key, value string) error
}

// Store groups the three record collections and the settings table that
// make up the persisted state.
type Store interface {
	SettingsStore

	Memories() MemoryStore
	Threads() ThreadStore
	Reminders() ReminderStore

	// Close releases any resources held by the store.
	Close() error
}
