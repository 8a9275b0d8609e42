// Package reminder keeps persisted reminders and their external triggers in
// step: a reminder is stored if and only if the notifier has armed a trigger
// for it.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/keymutex"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

var (
	// ErrInvalidTime is returned for a reminder time that is not strictly in
	// the future.
	ErrInvalidTime = errors.New("reminder time must be in the future")

	// ErrNotifierUnavailable is returned when the notifier cannot arm
	// triggers right now.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
)

// Notifier arms and disarms the external trigger for a reminder. It is
// replace-per-ID: scheduling an alert whose ID already has a trigger
// replaces that trigger, so one ID never has two.
type Notifier interface {
	// Schedule arms a trigger for alert and returns a handle identifying it.
	Schedule(ctx context.Context, alert types.Alert) (string, error)

	// Cancel disarms the trigger for id. Cancelling an unknown id is not an
	// error.
	Cancel(ctx context.Context, id string) error

	// Available reports whether Schedule is expected to succeed.
	Available() bool
}

// Scheduler creates, cancels and lists reminders.
type Scheduler struct {
	reminders storage.ReminderStore
	notifier  Notifier
	locks     *keymutex.KeyMutex
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPublisher sets where reminder events go.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Scheduler) { s.newID = newID }
}

// NewScheduler creates a scheduler persisting to reminders and arming
// triggers through notifier.
func NewScheduler(reminders storage.ReminderStore, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		reminders: reminders,
		notifier:  notifier,
		locks:     keymutex.New(0),
		publisher: notify.Nop{},
		logger:    logging.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = notify.Nop{}
	}
	return s
}

// Schedule creates a reminder with a fresh ID. See ScheduleWithID.
func (s *Scheduler) Schedule(ctx context.Context, when time.Time, text string, critical bool) (*types.Reminder, error) {
	return s.ScheduleWithID(ctx, s.newID(), when, text, critical)
}

// ScheduleWithID persists the reminder and arms its trigger as one unit.
// If id already exists the reminder and its trigger are replaced. On any
// failure after the first write the previous state is restored: the old
// record is put back (or the new one removed) and a trigger armed by this
// call is cancelled. Once the notifier has been called the remaining steps
// run to completion even if ctx is cancelled.
func (s *Scheduler) ScheduleWithID(ctx context.Context, id string, when time.Time, text string, critical bool) (*types.Reminder, error) {
	text = strings.TrimSpace(text)
	if !when.After(s.now()) {
		return nil, goerr.Wrap(ErrInvalidTime, "cannot schedule reminder", goerr.V("when", when))
	}
	if !types.InTimeRange(when) {
		return nil, goerr.Wrap(ErrInvalidTime, "reminder time is out of range", goerr.V("when", when), goerr.V("max", types.MaxTime))
	}
	if !s.notifier.Available() {
		return nil, goerr.Wrap(ErrNotifierUnavailable, "cannot schedule reminder")
	}

	r := &types.Reminder{ID: id, When: when.UTC(), Text: text, Critical: critical}
	if err := r.Validate(); err != nil {
		return nil, storage.Invalid(err, types.KindReminder)
	}

	err := s.locks.With(id, func() error {
		previous, err := s.reminders.Get(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := s.reminders.Put(ctx, r); err != nil {
			return err
		}

		handle, notifyErr := s.notifier.Schedule(ctx, r.Alert())
		// From here on the work must finish regardless of the caller.
		ctx := context.WithoutCancel(ctx)
		if notifyErr != nil {
			s.rollback(ctx, id, previous, false)
			return goerr.Wrap(notifyErr, "notifier failed to arm reminder", goerr.V("id", id))
		}

		r.NotificationHandle = handle
		if err := s.reminders.Put(ctx, r); err != nil {
			s.rollback(ctx, id, previous, true)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.ReminderScheduled, id)
	return r.Clone(), nil
}

// rollback undoes a failed ScheduleWithID. armed reports whether the
// notifier accepted the new trigger.
func (s *Scheduler) rollback(ctx context.Context, id string, previous *types.Reminder, armed bool) {
	logger := s.logger.With("id", id)

	if previous == nil {
		if err := s.reminders.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error("reminder: rollback failed to delete record", "error", err)
		}
		if armed {
			if err := s.notifier.Cancel(ctx, id); err != nil {
				logger.Error("reminder: rollback failed to cancel trigger", "error", err)
			}
		}
		return
	}

	if err := s.reminders.Put(ctx, previous); err != nil {
		logger.Error("reminder: rollback failed to restore record", "error", err)
	}
	// The notifier replaces per ID, so re-arming the previous alert both
	// removes the new trigger and restores the old one.
	switch {
	case previous.When.After(s.now()):
		if _, err := s.notifier.Schedule(ctx, previous.Alert()); err != nil {
			logger.Error("reminder: rollback failed to re-arm previous trigger", "error", err)
		}
	case armed:
		if err := s.notifier.Cancel(ctx, id); err != nil {
			logger.Error("reminder: rollback failed to cancel trigger", "error", err)
		}
	}
}

// Cancel disarms the trigger and deletes the reminder. Cancelling an
// unknown reminder is a no-op. If the trigger cannot be cancelled the
// reminder is kept so the two stay in step.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	removed, err := s.remove(ctx, id, func(*types.Reminder) bool { return true })
	if err != nil {
		return err
	}
	if removed {
		s.publish(ctx, notify.ReminderCancelled, id)
	}
	return nil
}

// Dismiss deletes a reminder once the user has seen it. A reminder that
// has not fired yet still has a trigger, which is cancelled first exactly
// as Cancel does. Dismissing an unknown reminder is a no-op.
func (s *Scheduler) Dismiss(ctx context.Context, id string) error {
	now := s.now()
	removed, err := s.remove(ctx, id, func(r *types.Reminder) bool { return r.When.After(now) })
	if err != nil {
		return err
	}
	if removed {
		s.publish(ctx, notify.ReminderDismissed, id)
	}
	return nil
}

// remove deletes the reminder under its lock, cancelling the trigger first
// when disarm says it may still be armed. A failed delete re-arms a
// cancelled upcoming trigger, so a stored reminder never loses its alert.
func (s *Scheduler) remove(ctx context.Context, id string, disarm func(*types.Reminder) bool) (bool, error) {
	removed := false
	err := s.locks.With(id, func() error {
		r, err := s.reminders.Get(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}

		cancelled := disarm(r)
		if cancelled {
			if err := s.notifier.Cancel(ctx, id); err != nil {
				return goerr.Wrap(err, "notifier failed to cancel reminder", goerr.V("id", id))
			}
		}

		ctx := context.WithoutCancel(ctx)
		if err := s.reminders.Delete(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				removed = true
				return nil
			}
			if cancelled && r.When.After(s.now()) {
				if _, armErr := s.notifier.Schedule(ctx, r.Alert()); armErr != nil {
					s.logger.Error("reminder: failed to re-arm trigger after failed delete", "id", id, "error", armErr)
				}
			}
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// Get returns one reminder or storage.ErrNotFound.
func (s *Scheduler) Get(ctx context.Context, id string) (*types.Reminder, error) {
	return s.reminders.Get(ctx, id)
}

// Upcoming returns the reminders due after now, soonest first.
func (s *Scheduler) Upcoming(ctx context.Context) ([]*types.Reminder, error) {
	now := s.now()
	return s.reminders.List(ctx, storage.ListOptions[types.Reminder]{
		Where:   func(r *types.Reminder) bool { return r.When.After(now) },
		OrderBy: byWhen,
	})
}

// All returns every stored reminder, due or not, soonest first.
func (s *Scheduler) All(ctx context.Context) ([]*types.Reminder, error) {
	return s.reminders.List(ctx, storage.ListOptions[types.Reminder]{OrderBy: byWhen})
}

// Restore re-arms the trigger of every upcoming reminder, for a notifier
// that lost its state (a restarted process). It is safe to repeat since
// the notifier replaces per ID. It returns how many were re-armed and the
// joined errors of those that failed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	upcoming, err := s.Upcoming(ctx)
	if err != nil {
		return 0, err
	}

	var (
		armed int
		errs  []error
	)
	for _, r := range upcoming {
		err := s.locks.With(r.ID, func() error {
			handle, err := s.notifier.Schedule(ctx, r.Alert())
			if err != nil {
				return goerr.Wrap(err, "failed to re-arm reminder", goerr.V("id", r.ID))
			}
			if handle == r.NotificationHandle {
				return nil
			}
			r.NotificationHandle = handle
			return s.reminders.Put(context.WithoutCancel(ctx), r)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		armed++
	}
	return armed, errors.Join(errs...)
}

// Sync makes the trigger for id match the store: an upcoming reminder is
// armed, anything else is cancelled. A daemon calls it when another process
// reports a change to id. The stored handle is left alone.
func (s *Scheduler) Sync(ctx context.Context, id string) error {
	return s.locks.With(id, func() error {
		r, err := s.reminders.Get(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if r == nil || !r.When.After(s.now()) {
			return s.notifier.Cancel(ctx, id)
		}
		if _, err := s.notifier.Schedule(ctx, r.Alert()); err != nil {
			return goerr.Wrap(err, "failed to arm reminder", goerr.V("id", id))
		}
		return nil
	})
}

func byWhen(a, b *types.Reminder) int {
	if c := a.When.Compare(b.When); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (s *Scheduler) publish(ctx context.Context, typ notify.EventType, id string) {
	if err := s.publisher.Publish(ctx, notify.NewEvent(typ, types.KindReminder, id)); err != nil {
		s.logger.Warn("reminder: failed to publish event", "type", typ, "id", id, "error", err)
	}
}
