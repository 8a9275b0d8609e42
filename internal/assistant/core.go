// Package assistant assembles the record store, memory index, chat threads
// and reminder scheduler into the surface a conversational front end talks
// to.
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrypster/alphalite/internal/chat"
	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/memory"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// DefaultK is the number of memories FindSimilar returns when the caller
// passes zero.
const DefaultK = 3

// Core is the assistant's state and operations.
type Core struct {
	store     storage.Store
	memories  *memory.Index
	threads   *chat.Manager
	reminders *reminder.Scheduler

	defaultK  int
	dimension int
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Core.
type Option func(*Core)

// WithPublisher sends change events from every component to p.
func WithPublisher(p notify.Publisher) Option {
	return func(c *Core) { c.publisher = p }
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithClock replaces time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// WithDefaultK sets the result count used when FindSimilar gets k == 0.
func WithDefaultK(k int) Option {
	return func(c *Core) { c.defaultK = k }
}

// WithDimension pins the embedding length up front.
func WithDimension(n int) Option {
	return func(c *Core) { c.dimension = n }
}

// New wires the components over store. The Core owns store and closes it
// in Close.
func New(ctx context.Context, store storage.Store, provider embedding.Provider, notifier reminder.Notifier, opts ...Option) (*Core, error) {
	c := &Core{
		store:     store,
		defaultK:  DefaultK,
		publisher: notify.Nop{},
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	memOpts := []memory.Option{
		memory.WithPublisher(c.publisher),
		memory.WithLogger(c.logger),
		memory.WithClock(c.now),
	}
	if c.dimension > 0 {
		memOpts = append(memOpts, memory.WithDimension(c.dimension))
	}
	index, err := memory.NewIndex(ctx, store, provider, memOpts...)
	if err != nil {
		return nil, err
	}

	c.memories = index
	c.threads = chat.NewManager(store.Threads(),
		chat.WithPublisher(c.publisher),
		chat.WithLogger(c.logger),
		chat.WithClock(c.now),
	)
	c.reminders = reminder.NewScheduler(store.Reminders(), notifier,
		reminder.WithPublisher(c.publisher),
		reminder.WithLogger(c.logger),
		reminder.WithClock(c.now),
	)
	return c, nil
}

// Close closes the store.
func (c *Core) Close() error { return c.store.Close() }

// FindSimilar returns the k memories closest to query; k == 0 means the
// configured default.
func (c *Core) FindSimilar(ctx context.Context, query string, k int) ([]memory.Match, error) {
	if k == 0 {
		k = c.defaultK
	}
	return c.memories.FindSimilar(ctx, query, k)
}

// AddMemory embeds and stores sentence.
func (c *Core) AddMemory(ctx context.Context, sentence string) (*types.Memory, error) {
	return c.memories.AddMemory(ctx, sentence)
}

// DeleteMemory removes a memory.
func (c *Core) DeleteMemory(ctx context.Context, id string) error {
	return c.memories.DeleteMemory(ctx, id)
}

// Memories lists every memory in insertion order.
func (c *Core) Memories(ctx context.Context) ([]*types.Memory, error) {
	return c.memories.ListAll(ctx)
}

// CreateThread starts an empty conversation.
func (c *Core) CreateThread(ctx context.Context, title string, tags []string) (*types.ChatThread, error) {
	return c.threads.CreateThread(ctx, title, tags)
}

// AddMessage appends msg to a thread.
func (c *Core) AddMessage(ctx context.Context, threadID string, msg types.Message) (*types.ChatThread, error) {
	return c.threads.AddMessage(ctx, threadID, msg)
}

// DeleteThread removes a thread and its messages.
func (c *Core) DeleteThread(ctx context.Context, id string) error {
	return c.threads.DeleteThread(ctx, id)
}

// Thread returns one thread.
func (c *Core) Thread(ctx context.Context, id string) (*types.ChatThread, error) {
	return c.threads.GetThread(ctx, id)
}

// ListThreads returns threads, most recently active first. A non-empty tag
// keeps only threads carrying it.
func (c *Core) ListThreads(ctx context.Context, tag string) ([]*types.ChatThread, error) {
	if tag != "" {
		return c.threads.ThreadsWithTag(ctx, tag)
	}
	return c.threads.ListThreads(ctx)
}

// Schedule creates a reminder.
func (c *Core) Schedule(ctx context.Context, when time.Time, text string, critical bool) (*types.Reminder, error) {
	return c.reminders.Schedule(ctx, when, text, critical)
}

// Upcoming lists reminders still to fire, soonest first.
func (c *Core) Upcoming(ctx context.Context) ([]*types.Reminder, error) {
	return c.reminders.Upcoming(ctx)
}

// Reminders lists every stored reminder, including fired ones not yet
// dismissed.
func (c *Core) Reminders(ctx context.Context) ([]*types.Reminder, error) {
	return c.reminders.All(ctx)
}

// Cancel removes a reminder and its trigger.
func (c *Core) Cancel(ctx context.Context, id string) error {
	return c.reminders.Cancel(ctx, id)
}

// Dismiss removes a reminder that has fired.
func (c *Core) Dismiss(ctx context.Context, id string) error {
	return c.reminders.Dismiss(ctx, id)
}

// RestoreReminders re-arms every upcoming reminder.
func (c *Core) RestoreReminders(ctx context.Context) (int, error) {
	return c.reminders.Restore(ctx)
}

// SyncReminder brings the trigger for id in line with the store.
func (c *Core) SyncReminder(ctx context.Context, id string) error {
	return c.reminders.Sync(ctx, id)
}
