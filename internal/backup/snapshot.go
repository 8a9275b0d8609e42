package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}
	return db, nil
}

// snapshot writes a consistent copy of src to dst with VACUUM INTO, which
// also folds in any WAL contents.
func snapshot(ctx context.Context, src, dst string) error {
	db, err := openReadOnly(src)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return goerr.Wrap(err, "failed to ping source database", goerr.V("path", src))
	}
	quoted := "'" + strings.ReplaceAll(dst, "'", "''") + "'"
	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return goerr.Wrap(err, "failed to snapshot database", goerr.V("src", src), goerr.V("dst", dst))
	}
	return nil
}

// Verify runs PRAGMA integrity_check on a database file.
func Verify(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return goerr.Wrap(err, "snapshot not found", goerr.V("path", path))
	}
	db, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return goerr.Wrap(err, "failed to run integrity check", goerr.V("path", path))
	}
	if result != "ok" {
		return goerr.New("integrity check failed", goerr.V("path", path), goerr.V("result", result))
	}
	return nil
}

// copyInto replaces target with a verified copy of src. The copy is written
// next to target and renamed over it, so target is never half written.
// Stale WAL and shared-memory files of target are removed.
func copyInto(ctx context.Context, src, target string) error {
	if err := Verify(ctx, src); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return goerr.Wrap(err, "failed to open snapshot", goerr.V("path", src))
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".restore-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("dir", filepath.Dir(target)))
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to copy snapshot", goerr.V("path", src))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to sync restored file")
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close restored file")
	}
	if err := Verify(ctx, tmpPath); err != nil {
		return err
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
			return goerr.Wrap(err, "failed to remove stale journal", goerr.V("path", target+suffix))
		}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return goerr.Wrap(err, "failed to replace database", goerr.V("path", target))
	}
	return nil
}
