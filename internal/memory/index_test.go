package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/memory"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/internal/storage/memstore"
)

// fakeProvider returns fixed vectors per text.
type fakeProvider struct {
	mu      sync.Mutex
	vectors map[string][]float64
	offline bool
	err     error
	onEmbed func()
	calls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{vectors: map[string][]float64{}}
}

func (p *fakeProvider) set(text string, vec ...float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vectors[text] = vec
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	p.mu.Lock()
	p.calls++
	hook, err := p.onEmbed, p.err
	vec, ok := p.vectors[text]
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, embedding.ErrMalformed
	}
	return append([]float64(nil), vec...), nil
}

func (p *fakeProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.offline
}

func (p *fakeProvider) Model() string { return "fake" }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newIndex(t *testing.T, store storage.Store, p embedding.Provider, opts ...memory.Option) *memory.Index {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]memory.Option{memory.WithLogger(logging.Discard()), memory.WithClock(c.Now)}, opts...)
	ix, err := memory.NewIndex(context.Background(), store, p, opts...)
	require.NoError(t, err)
	return ix
}

func TestFindSimilarWorkedExample(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.set("A", 1, 0)
	p.set("B", 0, 1)
	p.set("C", 0.9, 0.1)
	p.set("query", 1, 0)
	ix := newIndex(t, memstore.New(), p)

	for _, s := range []string{"A", "B", "C"} {
		_, err := ix.AddMemory(ctx, s)
		require.NoError(t, err)
	}

	got, err := ix.FindSimilar(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Sentence)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "C", got[1].Sentence)
	assert.InDelta(t, 0.9939, got[1].Score, 1e-4)

	got, err = ix.FindSimilar(ctx, "query", 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.InDelta(t, 0.0, got[2].Score, 1e-12, "orthogonal scores zero")
}

func TestFindSimilarInvalidK(t *testing.T) {
	ix := newIndex(t, memstore.New(), newFakeProvider())
	_, err := ix.FindSimilar(context.Background(), "q", 0)
	assert.ErrorIs(t, err, memory.ErrInvalidK)
	_, err = ix.FindSimilar(context.Background(), "q", -3)
	assert.ErrorIs(t, err, memory.ErrInvalidK)
}

func TestOfflineProvider(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := newFakeProvider()
	p.set("hello", 1, 0)
	ix := newIndex(t, store, p)

	_, err := ix.AddMemory(ctx, "hello")
	require.NoError(t, err)

	p.offline = true
	_, err = ix.AddMemory(ctx, "hello")
	assert.ErrorIs(t, err, embedding.ErrOffline)

	got, err := ix.FindSimilar(ctx, "hello", 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	n, err := store.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "no memory stored while offline")
}

func TestEmbeddingErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := newFakeProvider()
	p.err = embedding.ErrRateLimited
	ix := newIndex(t, store, p)

	_, err := ix.AddMemory(ctx, "hello")
	assert.ErrorIs(t, err, embedding.ErrRateLimited, "write path surfaces embedding errors")

	got, err := ix.FindSimilar(ctx, "hello", 3)
	require.NoError(t, err, "read path degrades to no results")
	assert.Empty(t, got)

	n, err := store.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ix.AddMemory(ctx, "   ")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDimensionChangeIsFatal(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := newFakeProvider()
	p.set("two", 1, 0)
	p.set("three", 1, 0, 0)
	ix := newIndex(t, store, p)

	_, err := ix.AddMemory(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Dimension())

	dim, err := store.GetSetting(ctx, storage.SettingEmbeddingDimension)
	require.NoError(t, err)
	assert.Equal(t, "2", dim)

	_, err = ix.AddMemory(ctx, "three")
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	// Sticky: even well-formed calls fail from now on.
	_, err = ix.FindSimilar(ctx, "two", 1)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
	_, err = ix.AddMemory(ctx, "two")
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestDimensionCheckedOnConstruction(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.SetSetting(ctx, storage.SettingEmbeddingDimension, "2"))

	_, err := memory.NewIndex(ctx, store, newFakeProvider(), memory.WithDimension(3), memory.WithLogger(logging.Discard()))
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	ix, err := memory.NewIndex(ctx, store, newFakeProvider(), memory.WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Dimension())

	require.NoError(t, store.SetSetting(ctx, storage.SettingEmbeddingDimension, "banana"))
	_, err = memory.NewIndex(ctx, store, newFakeProvider(), memory.WithLogger(logging.Discard()))
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestDimensionLearnedFromUnpinnedStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Memories().Put(ctx, storageMemory("old", 1, 2, 3)))

	ix, err := memory.NewIndex(ctx, store, newFakeProvider(), memory.WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Dimension())

	_, err = memory.NewIndex(ctx, memstoreWith(t, storageMemory("old", 1, 2, 3)), newFakeProvider(),
		memory.WithDimension(4), memory.WithLogger(logging.Discard()))
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestAddMemoryCompletesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memstore.New()
	p := newFakeProvider()
	p.set("remember the milk", 1, 1)
	p.onEmbed = cancel
	ix := newIndex(t, store, p)

	m, err := ix.AddMemory(ctx, "remember the milk")
	require.NoError(t, err)

	got, err := store.Memories().Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, got.Embedding)
}

func TestDeleteAndListAll(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.set("one", 1, 0)
	p.set("two", 0, 1)

	bus := notify.NewBus(logging.Discard())
	events, stop := bus.Subscribe(8)
	defer stop()

	ix := newIndex(t, memstore.New(), p, memory.WithPublisher(bus))
	m1, err := ix.AddMemory(ctx, "one")
	require.NoError(t, err)
	m2, err := ix.AddMemory(ctx, "two")
	require.NoError(t, err)
	assert.True(t, m1.CreatedAt.Before(m2.CreatedAt))

	all, err := ix.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m1.ID, all[0].ID)

	require.NoError(t, ix.DeleteMemory(ctx, m1.ID))
	assert.ErrorIs(t, ix.DeleteMemory(ctx, m1.ID), storage.ErrNotFound)

	all, err = ix.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, notify.MemoryCreated, (<-events).Type)
	assert.Equal(t, notify.MemoryCreated, (<-events).Type)
	evt := <-events
	assert.Equal(t, notify.MemoryDeleted, evt.Type)
	assert.Equal(t, m1.ID, evt.ID)
}

func TestConcurrentAddMemory(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := newFakeProvider()
	for i := 0; i < 20; i++ {
		p.set(fmt.Sprintf("fact %d", i), float64(i), 1)
	}
	ix := newIndex(t, store, p)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ix.AddMemory(ctx, fmt.Sprintf("fact %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := store.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
