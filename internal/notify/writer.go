package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// EventWriter writes event files to {dataPath}/events/ for an EventWatcher
// in another process.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Publish writes one event file. The file is written under a temporary name
// and renamed, so a watcher never reads a partial event. Safe to call
// concurrently.
func (w *EventWriter) Publish(_ context.Context, evt Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return goerr.Wrap(err, "notify: failed to create events directory", goerr.V("dir", w.dir))
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return goerr.Wrap(err, "notify: failed to encode event")
	}

	name := fmt.Sprintf("%d-%s-%s", evt.Time, evt.Kind, sanitizeID(evt.ID))
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return goerr.Wrap(err, "notify: failed to write event", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+".event")); err != nil {
		_ = os.Remove(tmp)
		return goerr.Wrap(err, "notify: failed to publish event", goerr.V("path", tmp))
	}
	return nil
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(id)
}
