// Package cli implements the alphalite command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/logging"
)

// Error carries the exit status of a failed run.
type Error struct {
	Code    int
	Message string
}

// Run executes the command line argv, writing output to stdout.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) *Error {
	var g globals
	cmd := &cli.Command{
		Name:   "alphalite",
		Usage:  "Local assistant core: memories, chat threads and reminders",
		Flags:  globalFlags(&g),
		Reader: stdin,
		Writer: stdout,
		Commands: []*cli.Command{
			memoryCommand(&g),
			threadCommand(&g),
			remindCommand(&g),
			statsCommand(&g),
			exportCommand(&g),
			backupCommand(&g),
			secretCommand(&g),
			serveCommand(&g),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Debug("command failed", "error", err)
		return &Error{Code: 1, Message: err.Error()}
	}
	return nil
}

// globals holds the flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

func globalFlags(g *globals) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a YAML config file",
			Sources:     cli.EnvVars("ALPHALITE_CONFIG"),
			Destination: &g.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error (overrides the config)",
			Destination: &g.logLevel,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print results as JSON",
			Destination: &g.jsonOutput,
		},
	}
}

// text joins the positional arguments into one string.
func text(c *cli.Command) string {
	return strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
}

func requireArg(c *cli.Command, what string) (string, error) {
	if c.Args().Len() == 0 || strings.TrimSpace(c.Args().First()) == "" {
		return "", goerr.New(what+" is required", goerr.V("usage", c.Name+" "+c.ArgsUsage))
	}
	return c.Args().First(), nil
}

// output prints v as JSON when --json is set and calls plain otherwise.
func (g *globals) output(c *cli.Command, v any, plain func(w io.Writer)) error {
	w := c.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	if g.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return goerr.Wrap(err, "failed to write output")
		}
		return nil
	}
	plain(w)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
