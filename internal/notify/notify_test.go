package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/pkg/types"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Publish(context.Background(), NewEvent(ReminderScheduled, types.KindReminder, "r:1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
	if !strings.Contains(entries[0].Name(), "-reminder-r_1") {
		t.Errorf("expected kind and sanitized id in name, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()
	received := make(chan Event, 1)

	watcher := NewEventWatcher(dir, logging.Discard(), func(evt Event) {
		received <- evt
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	if err := writer.Publish(context.Background(), NewEvent(MemoryCreated, types.KindMemory, "m1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-received:
		assert.Equal(t, MemoryCreated, evt.Type)
		assert.Equal(t, types.KindMemory, evt.Kind)
		assert.Equal(t, "m1", evt.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExistingInOrder(t *testing.T) {
	dir := t.TempDir()

	writer := NewEventWriter(dir)
	first := NewEvent(ReminderScheduled, types.KindReminder, "r1")
	second := first
	second.Type = ReminderCancelled
	second.Time++
	require.NoError(t, writer.Publish(context.Background(), second))
	require.NoError(t, writer.Publish(context.Background(), first))

	received := make(chan Event, 10)
	watcher := NewEventWatcher(dir, logging.Discard(), func(evt Event) {
		received <- evt
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	// Draining happens synchronously inside Start.
	require.Len(t, received, 2)
	assert.Equal(t, ReminderScheduled, (<-received).Type)
	assert.Equal(t, ReminderCancelled, (<-received).Type)
}

func TestEventWatcherSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events")
	require.NoError(t, os.MkdirAll(events, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(events, "1-bad.event"), []byte("{not json"), 0o600))

	called := false
	watcher := NewEventWatcher(dir, logging.Discard(), func(Event) { called = true })
	require.NoError(t, watcher.Start())
	watcher.Stop()

	assert.False(t, called)
	entries, err := os.ReadDir(events)
	require.NoError(t, err)
	assert.Empty(t, entries, "invalid files are consumed too")
}

func TestBus(t *testing.T) {
	bus := NewBus(logging.Discard())
	a, cancelA := bus.Subscribe(1)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewEvent(ThreadCreated, types.KindThread, "t1")))
	require.NoError(t, bus.Publish(ctx, NewEvent(ThreadUpdated, types.KindThread, "t1")))

	assert.Equal(t, ThreadCreated, (<-a).Type)
	assert.Len(t, a, 0, "second event dropped for the full subscriber")
	assert.Len(t, b, 2)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	require.NoError(t, bus.Publish(ctx, NewEvent(ThreadDeleted, types.KindThread, "t1")))
	assert.Len(t, b, 3)
}

func TestMulti(t *testing.T) {
	var got []EventType
	ok := PublisherFunc(func(_ context.Context, evt Event) error {
		got = append(got, evt.Type)
		return nil
	})
	failing := PublisherFunc(func(context.Context, Event) error { return errors.New("disk full") })

	err := Multi{ok, nil, failing, Nop{}}.Publish(context.Background(), NewEvent(MemoryDeleted, types.KindMemory, "m1"))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []EventType{MemoryDeleted}, got)
}

func TestSanitizeID(t *testing.T) {
	got := sanitizeID("mem:general:abc/def")
	if got != "mem_general_abc_def" {
		t.Errorf("expected mem_general_abc_def, got %s", got)
	}
}
