package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/pkg/types"
)

func remindCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "remind",
		Usage: "Schedule and manage reminders",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Schedule a reminder",
				ArgsUsage: "<text...>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "in", Usage: "Fire after this long, e.g. 90m"},
					&cli.StringFlag{Name: "at", Usage: "Fire at this RFC 3339 time"},
					&cli.BoolFlag{Name: "critical", Usage: "Ask the notifier to override muting"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					when, err := reminderTime(c, time.Now())
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error {
						r, err := rt.core.Schedule(ctx, when, text(c), c.Bool("critical"))
						if err != nil {
							return err
						}
						return g.output(c, r, func(w io.Writer) { printf(w, "%s\n", r.ID) })
					})
				},
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a reminder and its trigger",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "reminder id")
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error { return rt.core.Cancel(ctx, id) })
				},
			},
			{
				Name:      "dismiss",
				Usage:     "Remove a reminder that has fired",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "reminder id")
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error { return rt.core.Dismiss(ctx, id) })
				},
			},
			{
				Name:  "list",
				Usage: "List upcoming reminders",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Include fired reminders not yet dismissed"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return g.with(ctx, func(rt *runtime) error {
						list := rt.core.Upcoming
						if c.Bool("all") {
							list = rt.core.Reminders
						}
						reminders, err := list(ctx)
						if err != nil {
							return err
						}
						return g.output(c, reminders, func(w io.Writer) { printReminders(w, reminders) })
					})
				},
			},
		},
	}
}

// reminderTime reads --in or --at; exactly one must be given.
func reminderTime(c *cli.Command, now time.Time) (time.Time, error) {
	in, at := c.Duration("in"), c.String("at")
	switch {
	case in != 0 && at != "":
		return time.Time{}, goerr.New("use either --in or --at, not both")
	case in != 0:
		return now.Add(in), nil
	case at != "":
		when, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, goerr.Wrap(errors.Join(reminder.ErrInvalidTime, err), "cannot parse --at", goerr.V("at", at))
		}
		return when, nil
	default:
		return time.Time{}, goerr.New("one of --in or --at is required")
	}
}

func printReminders(w io.Writer, reminders []*types.Reminder) {
	for _, r := range reminders {
		flag := ""
		if r.Critical {
			flag = "!"
		}
		printf(w, "%s\t%s%s\t%s\n", r.ID, r.When.Local().Format(time.DateTime), flag, r.Text)
	}
}
