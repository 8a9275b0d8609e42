package assistant

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// ExportVersion identifies the layout written by Export.
const ExportVersion = 1

// Dump is everything Export writes.
type Dump struct {
	Version    int                 `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	Memories   []*types.Memory     `json:"memories"`
	Threads    []*types.ChatThread `json:"threads"`
	Reminders  []*types.Reminder   `json:"reminders"`
}

// Export writes every record to w as indented JSON.
func (c *Core) Export(ctx context.Context, w io.Writer) error {
	dump, err := c.Dump(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return goerr.Wrap(err, "failed to write export")
	}
	return nil
}

// Dump collects every record.
func (c *Core) Dump(ctx context.Context) (*Dump, error) {
	memories, err := c.store.Memories().List(ctx, storage.ListOptions[types.Memory]{})
	if err != nil {
		return nil, err
	}
	threads, err := c.store.Threads().List(ctx, storage.ListOptions[types.ChatThread]{})
	if err != nil {
		return nil, err
	}
	reminders, err := c.reminders.All(ctx)
	if err != nil {
		return nil, err
	}
	return &Dump{
		Version:    ExportVersion,
		ExportedAt: c.now().UTC(),
		Memories:   nonNil(memories),
		Threads:    nonNil(threads),
		Reminders:  nonNil(reminders),
	}, nil
}

func nonNil[T any](s []*T) []*T {
	if s == nil {
		return []*T{}
	}
	return s
}
