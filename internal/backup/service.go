package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/logging"
)

// Service takes snapshots of one database on demand or on an interval.
type Service struct {
	dbPath    string
	dir       string
	interval  time.Duration
	retention RetentionPolicy
	verify    bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewService validates cfg, fills defaults and creates the backup directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, goerr.New("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, goerr.New("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention == (RetentionPolicy{}) {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, goerr.Wrap(err, "backup: failed to create backup directory", goerr.V("dir", cfg.Dir))
	}
	return &Service{
		dbPath:    cfg.DBPath,
		dir:       cfg.Dir,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		verify:    cfg.Verify,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Run takes a snapshot every interval until ctx is done. Failed snapshots
// are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("backup: loop started", "interval", s.interval, "dir", s.dir)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup: loop stopped")
			return nil
		case <-ticker.C:
			result, err := s.Now(ctx)
			if err != nil {
				s.logger.Error("backup: scheduled snapshot failed", "error", err)
				continue
			}
			s.logger.Info("backup: snapshot written",
				"path", result.Path, "size", result.Size, "duration", result.Duration,
				"verified", result.Verified, "pruned", len(result.Pruned))
		}
	}
}

// Now takes a snapshot immediately, verifies it when configured and prunes
// old snapshots. A pruning failure is logged, not returned.
func (s *Service) Now(ctx context.Context) (*Result, error) {
	start := s.now()
	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, goerr.Wrap(err, "backup: database not found", goerr.V("path", s.dbPath))
	}

	path := filepath.Join(s.dir, fileName(start))
	if err := snapshot(ctx, s.dbPath, path); err != nil {
		return nil, err
	}

	result := &Result{Info: Info{Path: path, Timestamp: start.UTC()}}
	if s.verify {
		if err := Verify(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, err
		}
		result.Verified = true
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "backup: failed to stat snapshot", goerr.V("path", path))
	}
	result.Size = fi.Size()
	result.Duration = s.now().Sub(start)

	pruned, err := prune(s.dir, s.retention, s.now())
	if err != nil {
		s.logger.Warn("backup: failed to apply retention", "error", err)
	}
	result.Pruned = pruned
	return result, nil
}

// List returns the snapshots, newest first.
func (s *Service) List() ([]Info, error) {
	return list(s.dir)
}

// Restore replaces the database with the snapshot at path. The database
// must not be open. The current file is saved first and put back if the
// restore fails.
func (s *Service) Restore(ctx context.Context, path string) error {
	if err := Verify(ctx, path); err != nil {
		return err
	}

	saved := s.dbPath + ".pre-restore"
	if _, err := os.Stat(s.dbPath); err == nil {
		_ = os.Remove(saved)
		if err := snapshot(ctx, s.dbPath, saved); err != nil {
			return goerr.Wrap(err, "backup: failed to save current database")
		}
		defer func() { _ = os.Remove(saved) }()
	}

	if err := copyInto(ctx, path, s.dbPath); err != nil {
		if _, statErr := os.Stat(saved); statErr == nil {
			if rbErr := copyInto(context.WithoutCancel(ctx), saved, s.dbPath); rbErr != nil {
				return goerr.Wrap(err, "backup: restore failed and rollback failed", goerr.V("rollback_error", rbErr.Error()))
			}
			return goerr.Wrap(err, "backup: restore failed, previous database kept")
		}
		return err
	}

	s.logger.Info("backup: database restored", "from", path)
	return nil
}

// Health reports on the snapshot directory. It warns when the newest
// snapshot is older than two intervals.
func (s *Service) Health() (*Health, error) {
	backups, err := list(s.dir)
	if err != nil {
		return nil, err
	}

	h := &Health{Status: "healthy", Count: len(backups)}
	for _, b := range backups {
		h.Bytes += b.Size
	}
	if len(backups) == 0 {
		h.Message = "no backups yet"
		return h, nil
	}

	h.Last = backups[0].Timestamp
	age := s.now().Sub(h.Last)
	if age > 2*s.interval {
		h.Status = "warning"
		h.Message = fmt.Sprintf("backup overdue by %v", (age - s.interval).Round(time.Minute))
	} else {
		h.Message = fmt.Sprintf("last backup %v ago", age.Round(time.Minute))
	}
	return h, nil
}
