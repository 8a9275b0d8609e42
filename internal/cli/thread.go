package cli

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

func threadCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "thread",
		Usage: "Manage chat threads",
		Commands: []*cli.Command{
			{
				Name:      "new",
				Usage:     "Start a thread",
				ArgsUsage: "<title...>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag the thread (repeatable)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return g.with(ctx, func(rt *runtime) error {
						th, err := rt.core.CreateThread(ctx, text(c), c.StringSlice("tag"))
						if err != nil {
							return err
						}
						return g.output(c, th, func(w io.Writer) { printf(w, "%s\n", th.ID) })
					})
				},
			},
			{
				Name:      "say",
				Usage:     "Append a message to a thread",
				ArgsUsage: "<thread-id> <content...>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: string(types.RoleUser), Usage: "system, user or assistant"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "thread id")
					if err != nil {
						return err
					}
					role, ok := types.ParseRole(c.String("role"))
					if !ok {
						return goerr.Wrap(storage.ErrInvalidInput, "unknown role", goerr.V("role", c.String("role")))
					}
					content := strings.Join(c.Args().Tail(), " ")
					return g.with(ctx, func(rt *runtime) error {
						th, err := rt.core.AddMessage(ctx, id, types.Message{Role: role, Content: content, Timestamp: time.Now()})
						if err != nil {
							return err
						}
						return g.output(c, th, func(w io.Writer) { printf(w, "%d messages\n", len(th.Messages)) })
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Print a thread",
				ArgsUsage: "<thread-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "thread id")
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error {
						th, err := rt.core.Thread(ctx, id)
						if err != nil {
							return err
						}
						return g.output(c, th, func(w io.Writer) {
							printf(w, "%s\n", th.Title)
							for _, m := range th.Messages {
								printf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.DateTime), m.Role, m.Content)
							}
						})
					})
				},
			},
			{
				Name:  "list",
				Usage: "List threads, most recent first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Only threads with this tag"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return g.with(ctx, func(rt *runtime) error {
						threads, err := rt.core.ListThreads(ctx, c.String("tag"))
						if err != nil {
							return err
						}
						return g.output(c, threads, func(w io.Writer) {
							for _, th := range threads {
								printf(w, "%s\t%s\t%s\t%s\n", th.ID, th.UpdatedAt.Local().Format(time.DateTime), th.Title, th.Summary())
							}
						})
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a thread and its messages",
				ArgsUsage: "<thread-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "thread id")
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error {
						return rt.core.DeleteThread(ctx, id)
					})
				},
			},
		},
	}
}
