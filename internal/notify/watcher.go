package notify

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/logging"
)

// EventWatcher consumes event files written by EventWriter and hands each
// event to a callback. Files are deleted once read.
type EventWatcher struct {
	dir      string
	callback func(Event)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, logger *slog.Logger, callback func(Event)) *EventWatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventWatcher{
		dir:      filepath.Join(dataPath, "events"),
		callback: callback,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start drains existing event files (oldest first), then watches for new
// ones. Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return goerr.Wrap(err, "notify: failed to create events directory", goerr.V("dir", ew.dir))
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "notify: failed to create watcher")
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "notify: failed to watch events directory", goerr.V("dir", ew.dir))
	}
	ew.watcher = w

	go ew.loop()
	ew.logger.Info("notify: watching for change events", "dir", ew.dir)
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, ".event") {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("notify: watcher error", "error", err)
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".event") {
			names = append(names, entry.Name())
		}
	}
	// File names start with the event time.
	sort.Strings(names)
	for _, name := range names {
		ew.processFile(filepath.Join(ew.dir, name))
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // already consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.logger.Warn("notify: invalid event file", "file", filepath.Base(path), "error", err)
		return
	}

	if event.ID != "" && ew.callback != nil {
		ew.callback(event)
	}
}
