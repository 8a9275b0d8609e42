// Package storagetest holds the behavioural suite every storage.Store engine
// must pass. Engine packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Base is a fixed UTC instant the fixtures are built from.
var Base = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) storage.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("MemoryRoundTrip", func(t *testing.T) { testMemoryRoundTrip(t, open(t)) })
	t.Run("MemoryRejectsInvalid", func(t *testing.T) { testMemoryRejectsInvalid(t, open(t)) })
	t.Run("ThreadRoundTrip", func(t *testing.T) { testThreadRoundTrip(t, open(t)) })
	t.Run("ThreadReplaceMessages", func(t *testing.T) { testThreadReplaceMessages(t, open(t)) })
	t.Run("ReminderRoundTrip", func(t *testing.T) { testReminderRoundTrip(t, open(t)) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, open(t)) })
	t.Run("ListOptions", func(t *testing.T) { testListOptions(t, open(t)) })
	t.Run("KindsAreDisjoint", func(t *testing.T) { testKindsAreDisjoint(t, open(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, open(t)) })
	t.Run("TimeRange", func(t *testing.T) { testTimeRange(t, open(t)) })
	t.Run("ConcurrentPuts", func(t *testing.T) { testConcurrentPuts(t, open(t)) })
}

// Memory builds a valid memory fixture.
func Memory(id string, offset time.Duration, vec ...float64) *types.Memory {
	if len(vec) == 0 {
		vec = []float64{1, 0, 0}
	}
	return &types.Memory{
		ID:        id,
		Sentence:  "sentence " + id,
		Embedding: vec,
		CreatedAt: Base.Add(offset),
	}
}

// Thread builds a valid thread fixture holding msgs, one second apart.
func Thread(id string, msgs ...string) *types.ChatThread {
	t := &types.ChatThread{ID: id, Title: "thread " + id, CreatedAt: Base, UpdatedAt: Base}
	for i, content := range msgs {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		ts := Base.Add(time.Duration(i+1) * time.Second)
		t.Messages = append(t.Messages, types.Message{Role: role, Content: content, Timestamp: ts})
		t.UpdatedAt = ts
	}
	return t
}

// Reminder builds a valid reminder fixture.
func Reminder(id string, offset time.Duration) *types.Reminder {
	return &types.Reminder{ID: id, When: Base.Add(offset), Text: "remember " + id}
}

func testTimeRange(t *testing.T, s storage.Store) {
	ctx := context.Background()

	// The latest representable second survives a round trip.
	late := types.MaxTime.Truncate(time.Second)
	r := Reminder("r-late", 0)
	r.When = late
	require.NoError(t, s.Reminders().Put(ctx, r))
	got, err := s.Reminders().Get(ctx, "r-late")
	require.NoError(t, err)
	assert.True(t, late.Equal(got.When), "got %s", got.When)

	m := Memory("m-late", 0)
	m.CreatedAt = late
	require.NoError(t, s.Memories().Put(ctx, m))
	gotM, err := s.Memories().Get(ctx, "m-late")
	require.NoError(t, err)
	assert.True(t, late.Equal(gotM.CreatedAt), "got %s", gotM.CreatedAt)

	// Anything later is refused rather than stored wrapped around.
	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	r = Reminder("r-far", 0)
	r.When = far
	require.ErrorIs(t, s.Reminders().Put(ctx, r), storage.ErrInvalidInput)
	_, err = s.Reminders().Get(ctx, "r-far")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m = Memory("m-far", 0)
	m.CreatedAt = far
	assert.ErrorIs(t, s.Memories().Put(ctx, m), storage.ErrInvalidInput)

	th := Thread("t-far", "hello")
	th.Messages[0].Timestamp = far
	th.UpdatedAt = far
	assert.ErrorIs(t, s.Threads().Put(ctx, th), storage.ErrInvalidInput)

	early := Reminder("r-early", 0)
	early.When = time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, s.Reminders().Put(ctx, early), storage.ErrInvalidInput)
}

func testMemoryRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	m := Memory("m1", 0, 0.25, -1.5, 3e-7)

	require.NoError(t, s.Memories().Put(ctx, m))
	got, err := s.Memories().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m.Sentence, got.Sentence)
	assert.Equal(t, m.Embedding, got.Embedding)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))

	// The store must hand out copies.
	got.Embedding[0] = 42
	again, err := s.Memories().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, again.Embedding[0])

	n, err := s.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Memories().Delete(ctx, "m1"))
	_, err = s.Memories().Get(ctx, "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMemoryRejectsInvalid(t *testing.T, s storage.Store) {
	ctx := context.Background()

	noEmbedding := Memory("m1", 0)
	noEmbedding.Embedding = nil
	assert.ErrorIs(t, s.Memories().Put(ctx, noEmbedding), storage.ErrInvalidInput)

	blank := Memory("m2", 0)
	blank.Sentence = "   "
	assert.ErrorIs(t, s.Memories().Put(ctx, blank), storage.ErrInvalidInput)

	n, err := s.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testThreadRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	th := Thread("t1", "hello", "hi there", "how are you?")
	th.Tags = []string{"personal", "work"}

	require.NoError(t, s.Threads().Put(ctx, th))
	got, err := s.Threads().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, th.Title, got.Title)
	assert.Equal(t, th.Tags, got.Tags)
	require.Len(t, got.Messages, 3)
	for i := range th.Messages {
		assert.Equal(t, th.Messages[i].Role, got.Messages[i].Role)
		assert.Equal(t, th.Messages[i].Content, got.Messages[i].Content)
		assert.True(t, th.Messages[i].Timestamp.Equal(got.Messages[i].Timestamp))
	}
	assert.True(t, th.UpdatedAt.Equal(got.UpdatedAt))

	empty := Thread("t2")
	require.NoError(t, s.Threads().Put(ctx, empty))
	got, err = s.Threads().Get(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Empty(t, got.Tags)
}

func testThreadReplaceMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Threads().Put(ctx, Thread("t1", "one")))
	require.NoError(t, s.Threads().Put(ctx, Thread("t1", "one", "two")))

	got, err := s.Threads().Get(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "two", got.Messages[1].Content)

	n, err := s.Threads().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Threads().Delete(ctx, "t1"))
	list, err := s.Threads().List(ctx, storage.ListOptions[types.ChatThread]{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Messages of a deleted thread must not reappear under a new thread
	// with the same ID.
	require.NoError(t, s.Threads().Put(ctx, Thread("t1")))
	got, err = s.Threads().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func testReminderRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	r := Reminder("r1", time.Hour)
	r.Critical = true
	r.NotificationHandle = "timer:r1"

	require.NoError(t, s.Reminders().Put(ctx, r))
	got, err := s.Reminders().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, r.Text, got.Text)
	assert.True(t, got.Critical)
	assert.Equal(t, "timer:r1", got.NotificationHandle)
	assert.True(t, r.When.Equal(got.When))

	r.NotificationHandle = ""
	r.Critical = false
	require.NoError(t, s.Reminders().Put(ctx, r))
	got, err = s.Reminders().Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Critical)
	assert.Empty(t, got.NotificationHandle)
}

func testDeleteMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.Memories().Delete(ctx, "nope"), storage.ErrNotFound)
	assert.ErrorIs(t, s.Threads().Delete(ctx, "nope"), storage.ErrNotFound)
	assert.ErrorIs(t, s.Reminders().Delete(ctx, "nope"), storage.ErrNotFound)

	_, err := s.Threads().Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Reminders().Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListOptions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i, offset := range []time.Duration{3, 1, 2, 0} {
		require.NoError(t, s.Memories().Put(ctx, Memory(fmt.Sprintf("m%d", i), offset*time.Minute)))
	}

	all, err := s.Memories().List(ctx, storage.ListOptions[types.Memory]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, memoryIDs(all), "insertion order")

	sorted, err := s.Memories().List(ctx, storage.ListOptions[types.Memory]{
		Where:   func(m *types.Memory) bool { return m.ID != "m2" },
		OrderBy: func(a, b *types.Memory) int { return a.CreatedAt.Compare(b.CreatedAt) },
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m1"}, memoryIDs(sorted))

	// Replacing a record keeps its original position.
	require.NoError(t, s.Memories().Put(ctx, Memory("m1", 0)))
	all, err = s.Memories().List(ctx, storage.ListOptions[types.Memory]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, memoryIDs(all))
}

func testKindsAreDisjoint(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Memories().Put(ctx, Memory("same", 0)))
	require.NoError(t, s.Threads().Put(ctx, Thread("same", "hi")))
	require.NoError(t, s.Reminders().Put(ctx, Reminder("same", time.Hour)))

	require.NoError(t, s.Threads().Delete(ctx, "same"))

	_, err := s.Memories().Get(ctx, "same")
	assert.NoError(t, err)
	_, err = s.Reminders().Get(ctx, "same")
	assert.NoError(t, err)
}

func testSettings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetSetting(ctx, storage.SettingEmbeddingDimension)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetSetting(ctx, storage.SettingEmbeddingDimension, "3"))
	require.NoError(t, s.SetSetting(ctx, storage.SettingEmbeddingDimension, "1536"))
	v, err := s.GetSetting(ctx, storage.SettingEmbeddingDimension)
	require.NoError(t, err)
	assert.Equal(t, "1536", v)
}

func testConcurrentPuts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers*5)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				errs <- s.Memories().Put(ctx, Memory(id, time.Duration(i)*time.Second))
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.Memories().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers*5, n)
}

func memoryIDs(ms []*types.Memory) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}
