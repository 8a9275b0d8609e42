package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/pkg/types"
)

// Timer arms one time.AfterFunc per alert ID inside the current process and
// hands due alerts to a Sink. Scheduling an ID again replaces its timer.
type Timer struct {
	mu      sync.Mutex
	pending map[string]*armed
	seq     uint64
	stopped bool

	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

var _ reminder.Notifier = (*Timer)(nil)

type armed struct {
	timer *time.Timer
	seq   uint64
}

// NewTimer creates a Timer delivering to sink. A nil logger means the
// default logger.
func NewTimer(sink Sink, logger *slog.Logger) *Timer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Timer{
		pending: make(map[string]*armed),
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule arms a timer for alert, replacing any existing one for its ID.
// An alert already due fires right away.
func (t *Timer) Schedule(_ context.Context, alert types.Alert) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return "", goerr.Wrap(ErrStopped, "timer cannot schedule", goerr.V("id", alert.ID))
	}
	if prev, ok := t.pending[alert.ID]; ok {
		prev.timer.Stop()
	}

	t.seq++
	seq := t.seq
	delay := max(alert.When.Sub(t.now()), 0)
	t.pending[alert.ID] = &armed{
		seq:   seq,
		timer: time.AfterFunc(delay, func() { t.fire(alert, seq) }),
	}
	return fmt.Sprintf("timer-%d", seq), nil
}

func (t *Timer) fire(alert types.Alert, seq uint64) {
	t.mu.Lock()
	current, ok := t.pending[alert.ID]
	// A replaced or cancelled timer may still run if Stop lost the race.
	if !ok || current.seq != seq || t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.pending, alert.ID)
	t.mu.Unlock()

	if err := t.sink.Deliver(context.Background(), alert); err != nil {
		t.logger.Error("timer: failed to deliver alert", "id", alert.ID, "error", err)
	}
}

// Cancel disarms the timer for id, if any.
func (t *Timer) Cancel(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.pending[id]; ok {
		prev.timer.Stop()
		delete(t.pending, id)
	}
	return nil
}

// Available reports whether the timer still accepts alerts.
func (t *Timer) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// Pending returns the number of armed timers.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop disarms every timer. The Timer is unusable afterwards.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, a := range t.pending {
		a.timer.Stop()
		delete(t.pending, id)
	}
}
