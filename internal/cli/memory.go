package cli

import (
	"context"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/importer"
)

// memoryRow is a memory without its vector.
type memoryRow struct {
	ID        string    `json:"id"`
	Sentence  string    `json:"sentence"`
	CreatedAt time.Time `json:"created_at"`
}

func memoryCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Remember sentences and search them by meaning",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Embed and store a sentence",
				ArgsUsage: "<sentence...>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return g.with(ctx, func(rt *runtime) error {
						m, err := rt.core.AddMemory(ctx, text(c))
						if err != nil {
							return err
						}
						return g.output(c, m, func(w io.Writer) { printf(w, "%s\n", m.ID) })
					})
				},
			},
			{
				Name:      "search",
				Usage:     "List the memories closest in meaning to a query",
				ArgsUsage: "<query...>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results (0 uses the configured default)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					query := text(c)
					if _, err := requireArg(c, "query"); err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error {
						matches, err := rt.core.FindSimilar(ctx, query, int(c.Int("k")))
						if err != nil {
							return err
						}
						return g.output(c, matches, func(w io.Writer) {
							for _, m := range matches {
								printf(w, "%.4f\t%s\n", m.Score, m.Sentence)
							}
						})
					})
				},
			},
			{
				Name:  "list",
				Usage: "List all memories, oldest first",
				Action: func(ctx context.Context, c *cli.Command) error {
					return g.with(ctx, func(rt *runtime) error {
						all, err := rt.core.Memories(ctx)
						if err != nil {
							return err
						}
						out := make([]memoryRow, 0, len(all))
						for _, m := range all {
							out = append(out, memoryRow{ID: m.ID, Sentence: m.Sentence, CreatedAt: m.CreatedAt})
						}
						return g.output(c, out, func(w io.Writer) {
							for _, m := range out {
								printf(w, "%s\t%s\t%s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.Sentence)
							}
						})
					})
				},
			},
			{
				Name:      "import",
				Usage:     "Remember every sentence of a Markdown note or folder of notes",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Print the sentences without remembering them"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					path, err := requireArg(c, "path")
					if err != nil {
						return err
					}
					if c.Bool("dry-run") {
						notes, err := importer.Preview(path)
						if err != nil {
							return err
						}
						return g.output(c, notes, func(w io.Writer) {
							for _, n := range notes {
								printf(w, "%s (%s)\n", n.Title, n.RelativePath)
								for _, s := range n.Sentences {
									printf(w, "  %s\n", s)
								}
							}
						})
					}
					return g.with(ctx, func(rt *runtime) error {
						result, err := importer.New(rt.core, rt.logger).Import(ctx, path)
						if result != nil {
							if outErr := g.output(c, result, func(w io.Writer) {
								printf(w, "%d memories from %d files (%d duplicates, %d failed files)\n",
									result.Created, result.FilesImported, result.Duplicates, result.FilesFailed)
								for _, e := range result.Errors {
									printf(w, "  %s\n", e)
								}
							}); err == nil {
								err = outErr
							}
						}
						return err
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Forget a memory",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArg(c, "memory id")
					if err != nil {
						return err
					}
					return g.with(ctx, func(rt *runtime) error {
						return rt.core.DeleteMemory(ctx, id)
					})
				},
			},
		},
	}
}
