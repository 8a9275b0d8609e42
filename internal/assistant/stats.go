package assistant

import (
	"context"
	"time"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// activityDays is the trailing window Stats reports on.
const activityDays = 7

// Stats summarizes the stored data and recent chat activity.
type Stats struct {
	Memories  int `json:"memories"`
	Threads   int `json:"threads"`
	Messages  int `json:"messages"`
	Reminders int `json:"reminders"`
	Upcoming  int `json:"upcoming"`

	// MessagesLastWeek counts messages in the last seven calendar days,
	// today included.
	MessagesLastWeek int `json:"messages_last_week"`

	// Activity has one entry per day of that window, oldest first.
	Activity []DayActivity `json:"activity"`

	// MostActiveDay names the weekday with the most messages in the window,
	// or is empty when there were none. Ties go to the earlier day.
	MostActiveDay string `json:"most_active_day,omitempty"`
}

// DayActivity is the message count of one calendar day.
type DayActivity struct {
	Date     time.Time `json:"date"`
	Messages int       `json:"messages"`
}

// Stats computes the summary. Days are bucketed in the clock's location.
func (c *Core) Stats(ctx context.Context) (*Stats, error) {
	now := c.now()
	s := &Stats{}

	var err error
	if s.Memories, err = c.store.Memories().Count(ctx); err != nil {
		return nil, err
	}
	if s.Reminders, err = c.store.Reminders().Count(ctx); err != nil {
		return nil, err
	}
	upcoming, err := c.reminders.Upcoming(ctx)
	if err != nil {
		return nil, err
	}
	s.Upcoming = len(upcoming)

	threads, err := c.store.Threads().List(ctx, storage.ListOptions[types.ChatThread]{})
	if err != nil {
		return nil, err
	}
	s.Threads = len(threads)

	today := startOfDay(now)
	first := today.AddDate(0, 0, -(activityDays - 1))
	s.Activity = make([]DayActivity, activityDays)
	for i := range s.Activity {
		s.Activity[i].Date = first.AddDate(0, 0, i)
	}

	for _, th := range threads {
		s.Messages += len(th.Messages)
		for _, msg := range th.Messages {
			day := startOfDay(msg.Timestamp.In(now.Location()))
			if day.Before(first) || day.After(today) {
				continue
			}
			for i := range s.Activity {
				if s.Activity[i].Date.Equal(day) {
					s.Activity[i].Messages++
					s.MessagesLastWeek++
					break
				}
			}
		}
	}

	best := -1
	for i, a := range s.Activity {
		if a.Messages == 0 {
			continue
		}
		if best < 0 || a.Messages > s.Activity[best].Messages {
			best = i
		}
	}
	if best >= 0 {
		s.MostActiveDay = s.Activity[best].Date.Weekday().String()
	}
	return s, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
