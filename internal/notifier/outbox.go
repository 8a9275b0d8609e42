package notifier

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/pkg/types"
)

// OutboxHandle is the handle stored for reminders armed through an Outbox.
const OutboxHandle = "outbox"

// Outbox is the notifier for one-shot processes such as the CLI. It cannot
// keep a timer alive, so it records each request as a change event; the
// daemon watching those events arms its own Timer from the store.
type Outbox struct {
	publisher notify.Publisher
}

var _ reminder.Notifier = (*Outbox)(nil)

// NewOutbox creates an Outbox writing to publisher, usually a
// notify.EventWriter.
func NewOutbox(publisher notify.Publisher) *Outbox {
	return &Outbox{publisher: publisher}
}

// Schedule records an arm request for alert.
func (o *Outbox) Schedule(ctx context.Context, alert types.Alert) (string, error) {
	if err := o.publisher.Publish(ctx, notify.NewEvent(notify.ReminderScheduled, types.KindReminder, alert.ID)); err != nil {
		return "", goerr.Wrap(err, "outbox: failed to record schedule", goerr.V("id", alert.ID))
	}
	return OutboxHandle, nil
}

// Cancel records a disarm request for id.
func (o *Outbox) Cancel(ctx context.Context, id string) error {
	if err := o.publisher.Publish(ctx, notify.NewEvent(notify.ReminderCancelled, types.KindReminder, id)); err != nil {
		return goerr.Wrap(err, "outbox: failed to record cancel", goerr.V("id", id))
	}
	return nil
}

// Available is always true; the event directory is local.
func (o *Outbox) Available() bool { return true }
