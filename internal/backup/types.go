// Package backup takes point-in-time snapshots of the SQLite record store,
// verifies them, prunes old ones by tiered retention and restores them.
package backup

import (
	"log/slog"
	"time"
)

// Config configures a Service.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Interval between snapshots when running the loop. Default: 1h
	Interval time.Duration

	// Retention decides which snapshots survive pruning.
	Retention RetentionPolicy

	// Verify runs an integrity check on each new snapshot.
	Verify bool

	Logger *slog.Logger
}

// RetentionPolicy is how many snapshots to keep per age tier:
// Hourly under a day, Daily under a week, Weekly under 30 days and Monthly
// under a year. Anything older is always removed.
type RetentionPolicy struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// DefaultRetention keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
var DefaultRetention = RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}

// Info describes a snapshot file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a snapshot just taken.
type Result struct {
	Info
	Duration time.Duration `json:"duration"`
	Verified bool          `json:"verified"`
	Pruned   []string      `json:"pruned,omitempty"`
}

// Health summarizes the snapshot directory.
type Health struct {
	// Status is "healthy" or "warning".
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Last    time.Time `json:"last"`
	Count   int       `json:"count"`
	Bytes   int64     `json:"bytes"`
}
