package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/backup"
	"github.com/scrypster/alphalite/internal/embedding"
)

func statsCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize stored data and the last week of activity",
		Action: func(ctx context.Context, c *cli.Command) error {
			return g.with(ctx, func(rt *runtime) error {
				s, err := rt.core.Stats(ctx)
				if err != nil {
					return err
				}
				return g.output(c, s, func(w io.Writer) {
					printf(w, "memories\t%d\nthreads\t%d\nmessages\t%d\nreminders\t%d\nupcoming\t%d\n",
						s.Memories, s.Threads, s.Messages, s.Reminders, s.Upcoming)
					printf(w, "messages (7 days)\t%d\n", s.MessagesLastWeek)
					if s.MostActiveDay != "" {
						printf(w, "most active on\t%s\n", s.MostActiveDay)
					}
					for _, d := range s.Activity {
						printf(w, "%s\t%s\n", d.Date.Format("Mon 01-02"), strings.Repeat("#", d.Messages))
					}
				})
			})
		},
	}
}

func exportCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every record as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "File to write (default: stdout)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return g.with(ctx, func(rt *runtime) error {
				path := c.String("output")
				if path == "" {
					return rt.core.Export(ctx, c.Root().Writer)
				}
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return goerr.Wrap(err, "failed to create export file", goerr.V("path", path))
				}
				if err := rt.core.Export(ctx, f); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return goerr.Wrap(err, "failed to close export file", goerr.V("path", path))
				}
				return nil
			})
		},
	}
}

// backupService opens the snapshot service for the configured SQLite file.
func (g *globals) backupService() (*backup.Service, error) {
	cfg, logger, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Engine != "sqlite" {
		return nil, goerr.New("backups need the sqlite engine", goerr.V("engine", cfg.Storage.Engine))
	}
	bc := cfg.BackupService()
	bc.Logger = logger
	return backup.NewService(bc)
}

func backupCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Snapshot, list, verify and restore the SQLite database",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Take a snapshot now",
				Action: func(ctx context.Context, c *cli.Command) error {
					svc, err := g.backupService()
					if err != nil {
						return err
					}
					result, err := svc.Now(ctx)
					if err != nil {
						return err
					}
					return g.output(c, result, func(w io.Writer) {
						printf(w, "%s\t%d bytes\tverified=%v\n", result.Path, result.Size, result.Verified)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List snapshots, newest first",
				Action: func(ctx context.Context, c *cli.Command) error {
					svc, err := g.backupService()
					if err != nil {
						return err
					}
					backups, err := svc.List()
					if err != nil {
						return err
					}
					return g.output(c, backups, func(w io.Writer) {
						for _, b := range backups {
							printf(w, "%s\t%s\t%d\n", b.Path, b.Timestamp.Local().Format("2006-01-02 15:04:05"), b.Size)
						}
					})
				},
			},
			{
				Name:      "verify",
				Usage:     "Check a snapshot's integrity",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, c *cli.Command) error {
					path, err := requireArg(c, "snapshot path")
					if err != nil {
						return err
					}
					return backup.Verify(ctx, path)
				},
			},
			{
				Name:      "restore",
				Usage:     "Replace the database with a snapshot (stop the daemon first)",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, c *cli.Command) error {
					path, err := requireArg(c, "snapshot path")
					if err != nil {
						return err
					}
					svc, err := g.backupService()
					if err != nil {
						return err
					}
					return svc.Restore(ctx, path)
				},
			},
		},
	}
}

func secretCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage stored credentials",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a secret; the value is read from stdin when omitted, and an empty value removes it",
				ArgsUsage: "<name> [value]",
				Action: func(ctx context.Context, c *cli.Command) error {
					name, err := requireArg(c, "secret name")
					if err != nil {
						return err
					}
					value := c.Args().Get(1)
					if c.Args().Len() < 2 {
						line, err := bufio.NewReader(c.Root().Reader).ReadString('\n')
						if err != nil && err != io.EOF {
							return goerr.Wrap(err, "failed to read secret from stdin")
						}
						value = strings.TrimSpace(line)
					}
					cfg, _, err := g.loadConfig()
					if err != nil {
						return err
					}
					if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
						return goerr.Wrap(err, "failed to create data directory", goerr.V("path", cfg.Storage.DataPath))
					}
					return embedding.NewFileSecrets(cfg.SecretsPath()).Set(name, value)
				},
			},
		},
	}
}
