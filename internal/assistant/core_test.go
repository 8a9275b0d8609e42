package assistant_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/assistant"
	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/internal/storage/memstore"
	"github.com/scrypster/alphalite/pkg/types"
)

// Thursday.
var now = time.Date(2026, 5, 7, 12, 0, 0, 0, time.UTC)

// vectors is a provider with a fixed vector per text.
type vectors struct {
	mu      sync.Mutex
	byText  map[string][]float64
	offline bool
}

func (v *vectors) Embed(_ context.Context, text string) ([]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vec, ok := v.byText[text]
	if !ok {
		return nil, embedding.ErrMalformed
	}
	return append([]float64(nil), vec...), nil
}

func (v *vectors) Available() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.offline
}

func (v *vectors) Model() string { return "fixed" }

// triggers is a replace-per-ID notifier that only records what is armed.
type triggers struct {
	mu    sync.Mutex
	armed map[string]types.Alert
}

func (n *triggers) Schedule(_ context.Context, a types.Alert) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.armed[a.ID] = a
	return "h-" + a.ID, nil
}

func (n *triggers) Cancel(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.armed, id)
	return nil
}

func (n *triggers) Available() bool { return true }

func (n *triggers) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.armed)
}

type fixture struct {
	core     *assistant.Core
	store    *memstore.Store
	provider *vectors
	timer    *triggers
}

func newFixture(t *testing.T, opts ...assistant.Option) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		provider: &vectors{byText: map[string][]float64{
			"A":     {1, 0},
			"B":     {0, 1},
			"C":     {0.9, 0.1},
			"query": {1, 0},
		}},
	}
	f.timer = &triggers{armed: map[string]types.Alert{}}

	opts = append([]assistant.Option{
		assistant.WithLogger(logging.Discard()),
		assistant.WithClock(func() time.Time { return now }),
	}, opts...)
	core, err := assistant.New(context.Background(), f.store, f.provider, f.timer, opts...)
	require.NoError(t, err)
	f.core = core
	return f
}

func TestFindSimilarExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, s := range []string{"A", "B", "C"} {
		_, err := f.core.AddMemory(ctx, s)
		require.NoError(t, err)
	}

	matches, err := f.core.FindSimilar(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "A", matches[0].Sentence)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "C", matches[1].Sentence)
	assert.InDelta(t, 0.9939, matches[1].Score, 1e-4)

	// Zero k means the default of three.
	matches, err = f.core.FindSimilar(ctx, "query", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// Asking for more than exist returns what exists.
	matches, err = f.core.FindSimilar(ctx, "query", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	f.provider.offline = true
	matches, err = f.core.FindSimilar(ctx, "query", 2)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = f.core.AddMemory(ctx, "A")
	require.ErrorIs(t, err, embedding.ErrOffline)
}

func TestDefaultKOption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assistant.WithDefaultK(1))
	for _, s := range []string{"A", "B"} {
		_, err := f.core.AddMemory(ctx, s)
		require.NoError(t, err)
	}
	matches, err := f.core.FindSimilar(ctx, "query", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.core.AddMemory(ctx, "B")
	require.NoError(t, err)

	all, err := f.core.Memories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, f.core.DeleteMemory(ctx, m.ID))
	require.ErrorIs(t, f.core.DeleteMemory(ctx, m.ID), storage.ErrNotFound)
}

func TestThreads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	work, err := f.core.CreateThread(ctx, "Planning", []string{"work"})
	require.NoError(t, err)
	home, err := f.core.CreateThread(ctx, "Groceries", []string{"home"})
	require.NoError(t, err)

	_, err = f.core.AddMessage(ctx, work.ID, types.Message{Role: types.RoleUser, Content: "agenda?", Timestamp: now.Add(time.Minute)})
	require.NoError(t, err)
	th, err := f.core.AddMessage(ctx, work.ID, types.Message{Role: types.RoleAssistant, Content: "standup first", Timestamp: now.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, "agenda?", th.Messages[0].Content)
	assert.True(t, th.UpdatedAt.Equal(now.Add(2*time.Minute)))

	got, err := f.core.Thread(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, th, got)

	tagged, err := f.core.ListThreads(ctx, "home")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, home.ID, tagged[0].ID)

	all, err := f.core.ListThreads(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, work.ID, all[0].ID)

	require.NoError(t, f.core.DeleteThread(ctx, work.ID))
	_, err = f.core.Thread(ctx, work.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.core.AddMessage(ctx, work.ID, types.Message{Role: types.RoleUser, Content: "hello?"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.core.Schedule(ctx, now.Add(-time.Second), "too late", false)
	require.ErrorIs(t, err, reminder.ErrInvalidTime)

	r, err := f.core.Schedule(ctx, now.Add(time.Hour), "call the dentist", true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.timer.Pending())

	upcoming, err := f.core.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, r.ID, upcoming[0].ID)

	require.NoError(t, f.core.Cancel(ctx, r.ID))
	upcoming, err = f.core.Upcoming(ctx)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
	assert.Zero(t, f.timer.Pending())

	all, err := f.core.Reminders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRestoreAndSyncReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.core.Schedule(ctx, now.Add(time.Hour), "one", false)
	require.NoError(t, err)
	require.NoError(t, f.store.Reminders().Put(ctx, &types.Reminder{ID: "other-process", When: now.Add(2 * time.Hour), Text: "two"}))

	require.NoError(t, f.core.SyncReminder(ctx, "other-process"))
	assert.Equal(t, 2, f.timer.Pending())

	n, err := f.core.RestoreReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.timer.Pending())

	require.NoError(t, f.core.Dismiss(ctx, "other-process"))
	require.NoError(t, f.core.SyncReminder(ctx, "other-process"))
	assert.Equal(t, 1, f.timer.Pending())
}

func TestEventsFromEveryComponent(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus(logging.Discard())
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()

	f := newFixture(t, assistant.WithPublisher(bus))

	_, err := f.core.AddMemory(ctx, "A")
	require.NoError(t, err)
	_, err = f.core.CreateThread(ctx, "t", nil)
	require.NoError(t, err)
	_, err = f.core.Schedule(ctx, now.Add(time.Hour), "r", false)
	require.NoError(t, err)

	var kinds []types.Kind
	for range 3 {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []types.Kind{types.KindMemory, types.KindThread, types.KindReminder}, kinds)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	day := func(d, hour int) time.Time { return time.Date(2026, 5, d, hour, 0, 0, 0, time.UTC) }
	msg := func(ts time.Time) types.Message {
		return types.Message{Role: types.RoleUser, Content: "hi", Timestamp: ts}
	}
	old := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.Threads().Put(ctx, &types.ChatThread{
		ID: "t1", Title: "one", CreatedAt: old, UpdatedAt: day(6, 9),
		Messages: []types.Message{msg(old), msg(old), msg(day(4, 8)), msg(day(4, 9)), msg(day(6, 9))},
	}))
	require.NoError(t, f.store.Threads().Put(ctx, &types.ChatThread{
		ID: "t2", Title: "two", CreatedAt: day(4, 7), UpdatedAt: day(4, 10),
		Messages: []types.Message{msg(day(4, 10))},
	}))
	_, err := f.core.AddMemory(ctx, "A")
	require.NoError(t, err)
	_, err = f.core.Schedule(ctx, now.Add(time.Hour), "later", false)
	require.NoError(t, err)
	require.NoError(t, f.store.Reminders().Put(ctx, &types.Reminder{ID: "fired", When: now.Add(-time.Hour), Text: "done"}))

	s, err := f.core.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Memories)
	assert.Equal(t, 2, s.Threads)
	assert.Equal(t, 6, s.Messages)
	assert.Equal(t, 2, s.Reminders)
	assert.Equal(t, 1, s.Upcoming)
	assert.Equal(t, 4, s.MessagesLastWeek)
	assert.Equal(t, "Monday", s.MostActiveDay)

	require.Len(t, s.Activity, 7)
	assert.True(t, s.Activity[0].Date.Equal(day(1, 0)))
	assert.True(t, s.Activity[6].Date.Equal(day(7, 0)))
	assert.Equal(t, 3, s.Activity[3].Messages)
	assert.Equal(t, 1, s.Activity[5].Messages)
}

func TestStatsEmpty(t *testing.T) {
	f := newFixture(t)
	s, err := f.core.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.MessagesLastWeek)
	assert.Empty(t, s.MostActiveDay)
	assert.Len(t, s.Activity, 7)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, f.core.Export(ctx, &buf))
	var empty assistant.Dump
	require.NoError(t, json.Unmarshal(buf.Bytes(), &empty))
	assert.NotNil(t, empty.Memories)
	assert.Contains(t, buf.String(), `"memories": []`)

	_, err := f.core.AddMemory(ctx, "A")
	require.NoError(t, err)
	th, err := f.core.CreateThread(ctx, "t", []string{"x"})
	require.NoError(t, err)
	_, err = f.core.AddMessage(ctx, th.ID, types.Message{Role: types.RoleUser, Content: "hi", Timestamp: now.Add(time.Minute)})
	require.NoError(t, err)
	_, err = f.core.Schedule(ctx, now.Add(time.Hour), "r", true)
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, f.core.Export(ctx, &buf))

	var dump assistant.Dump
	require.NoError(t, json.Unmarshal(buf.Bytes(), &dump))
	assert.Equal(t, assistant.ExportVersion, dump.Version)
	assert.True(t, dump.ExportedAt.Equal(now))
	require.Len(t, dump.Memories, 1)
	assert.Equal(t, []float64{1, 0}, dump.Memories[0].Embedding)
	require.Len(t, dump.Threads, 1)
	require.Len(t, dump.Threads[0].Messages, 1)
	require.Len(t, dump.Reminders, 1)
	assert.True(t, dump.Reminders[0].Critical)
}

func TestCloseClosesStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.core.Close())
}
