package notifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notifier"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/internal/storage/memstore"
	"github.com/scrypster/alphalite/pkg/types"
)

func chanSink() (notifier.Sink, <-chan types.Alert) {
	ch := make(chan types.Alert, 16)
	return notifier.SinkFunc(func(_ context.Context, a types.Alert) error {
		ch <- a
		return nil
	}), ch
}

func receive(t *testing.T, ch <-chan types.Alert) types.Alert {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		require.FailNow(t, "alert was not delivered")
		return types.Alert{}
	}
}

func assertQuiet(t *testing.T, ch <-chan types.Alert, wait time.Duration) {
	t.Helper()
	select {
	case a := <-ch:
		assert.Failf(t, "unexpected alert", "%+v", a)
	case <-time.After(wait):
	}
}

func alertIn(id string, d time.Duration, body string) types.Alert {
	return types.Alert{ID: id, When: time.Now().Add(d), Title: types.ReminderTitle, Body: body}
}

func TestTimerDeliversDueAlert(t *testing.T) {
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())
	defer timer.Stop()

	handle, err := timer.Schedule(context.Background(), alertIn("a", 20*time.Millisecond, "stretch"))
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, 1, timer.Pending())

	got := receive(t, ch)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "stretch", got.Body)
	assert.Eventually(t, func() bool { return timer.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerReplacesPerID(t *testing.T) {
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())
	defer timer.Stop()

	ctx := context.Background()
	first, err := timer.Schedule(ctx, alertIn("a", 30*time.Millisecond, "old"))
	require.NoError(t, err)
	second, err := timer.Schedule(ctx, alertIn("a", 60*time.Millisecond, "new"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, timer.Pending())

	assert.Equal(t, "new", receive(t, ch).Body)
	assertQuiet(t, ch, 150*time.Millisecond)
}

func TestTimerCancel(t *testing.T) {
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())
	defer timer.Stop()

	ctx := context.Background()
	_, err := timer.Schedule(ctx, alertIn("a", 30*time.Millisecond, "stretch"))
	require.NoError(t, err)
	require.NoError(t, timer.Cancel(ctx, "a"))
	require.NoError(t, timer.Cancel(ctx, "unknown"))

	assert.Zero(t, timer.Pending())
	assertQuiet(t, ch, 100*time.Millisecond)
}

func TestTimerFiresOverdueAlertImmediately(t *testing.T) {
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())
	defer timer.Stop()

	_, err := timer.Schedule(context.Background(), alertIn("late", -time.Minute, "overdue"))
	require.NoError(t, err)
	assert.Equal(t, "late", receive(t, ch).ID)
}

func TestTimerStop(t *testing.T) {
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())

	_, err := timer.Schedule(context.Background(), alertIn("a", 30*time.Millisecond, "stretch"))
	require.NoError(t, err)

	timer.Stop()
	assert.False(t, timer.Available())
	assert.Zero(t, timer.Pending())

	_, err = timer.Schedule(context.Background(), alertIn("b", time.Hour, "later"))
	require.ErrorIs(t, err, notifier.ErrStopped)
	assertQuiet(t, ch, 100*time.Millisecond)
}

func TestSchedulerDrivesTimer(t *testing.T) {
	ctx := context.Background()
	sink, ch := chanSink()
	timer := notifier.NewTimer(sink, logging.Discard())
	defer timer.Stop()

	scheduler := reminder.NewScheduler(memstore.New().Reminders(), timer, reminder.WithLogger(logging.Discard()))

	r, err := scheduler.Schedule(ctx, time.Now().Add(50*time.Millisecond), "take a break", true)
	require.NoError(t, err)
	assert.Contains(t, r.NotificationHandle, "timer-")

	got := receive(t, ch)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, types.ReminderTitle, got.Title)
	assert.Equal(t, "take a break", got.Body)
	assert.True(t, got.Critical)

	// Cancel after firing still removes the record.
	require.NoError(t, scheduler.Cancel(ctx, r.ID))
	_, err = scheduler.Get(ctx, r.ID)
	require.Error(t, err)
}

func TestSinks(t *testing.T) {
	var calls int
	count := notifier.SinkFunc(func(context.Context, types.Alert) error { calls++; return nil })
	failing := notifier.SinkFunc(func(context.Context, types.Alert) error { return assert.AnError })

	sinks := notifier.Sinks{count, failing, notifier.LogSink{Logger: logging.Discard()}, count}
	err := sinks.Deliver(context.Background(), types.Alert{ID: "a"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}
