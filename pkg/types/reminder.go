package types

import (
	"fmt"
	"strings"
	"time"
)

// ReminderTitle is the alert title used for every reminder.
const ReminderTitle = "Reminder"

// Reminder is a persisted request to alert the user at When. The
// NotificationHandle is whatever reference the notifier returned when the
// trigger was armed.
type Reminder struct {
	ID                 string    `json:"id"`
	When               time.Time `json:"when"`
	Text               string    `json:"text"`
	Critical           bool      `json:"critical"`
	NotificationHandle string    `json:"notification_handle,omitempty"`
}

// Validate checks the reminder fields. It does not check that When lies in
// the future; that is a scheduling decision.
func (r *Reminder) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: reminder is nil", ErrInvalid)
	case r.ID == "":
		return fmt.Errorf("%w: reminder ID is required", ErrInvalid)
	case r.When.IsZero():
		return fmt.Errorf("%w: reminder time is required", ErrInvalid)
	case !InTimeRange(r.When):
		return fmt.Errorf("%w: reminder time %s is out of range", ErrInvalid, r.When.Format(time.RFC3339))
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("%w: reminder text is required", ErrInvalid)
	}
	return nil
}

// Title returns the alert title shown for the reminder.
func (r *Reminder) Title() string { return ReminderTitle }

// Alert builds the notifier request for the reminder.
func (r *Reminder) Alert() Alert {
	return Alert{
		ID:       r.ID,
		When:     r.When,
		Title:    r.Title(),
		Body:     r.Text,
		Critical: r.Critical,
	}
}

// Clone returns a copy of r.
func (r *Reminder) Clone() *Reminder {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Alert is the request a notifier receives to fire at When. Critical asks the
// notifier to override user muting.
type Alert struct {
	ID       string    `json:"id"`
	When     time.Time `json:"when"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Critical bool      `json:"critical"`
}
