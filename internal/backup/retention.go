package backup

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	filePrefix = "alphalite-"
	fileSuffix = ".db"
	timeLayout = "20060102-150405.000000"
)

func fileName(t time.Time) string {
	return filePrefix + t.UTC().Format(timeLayout) + fileSuffix
}

// list returns the snapshots in dir, newest first. The timestamp comes from
// the file name; files named otherwise fall back to their modification time.
func list(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read backup directory", goerr.V("dir", dir))
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		ts := fi.ModTime()
		if stamp, ok := strings.CutPrefix(strings.TrimSuffix(name, fileSuffix), filePrefix); ok {
			if parsed, err := time.Parse(timeLayout, stamp); err == nil {
				ts = parsed
			}
		}
		out = append(out, Info{Path: filepath.Join(dir, name), Timestamp: ts, Size: fi.Size()})
	}

	slices.SortFunc(out, func(a, b Info) int { return b.Timestamp.Compare(a.Timestamp) })
	return out, nil
}

// expired picks the snapshots policy does not keep at now. backups must be
// newest first.
func expired(backups []Info, policy RetentionPolicy, now time.Time) []string {
	const day = 24 * time.Hour
	tiers := []struct {
		maxAge time.Duration
		keep   int
	}{
		{day, policy.Hourly},
		{7 * day, policy.Daily},
		{30 * day, policy.Weekly},
		{365 * day, policy.Monthly},
	}

	kept := make([]int, len(tiers))
	var out []string
next:
	for _, b := range backups {
		age := now.Sub(b.Timestamp)
		for i, tier := range tiers {
			if age < tier.maxAge {
				if kept[i] < tier.keep {
					kept[i]++
				} else {
					out = append(out, b.Path)
				}
				continue next
			}
		}
		out = append(out, b.Path)
	}
	return out
}

// prune deletes what expired selects and returns the removed paths. It keeps
// going past failures and reports them joined.
func prune(dir string, policy RetentionPolicy, now time.Time) ([]string, error) {
	backups, err := list(dir)
	if err != nil {
		return nil, err
	}

	var (
		removed []string
		errs    []error
	)
	for _, path := range expired(backups, policy, now) {
		if err := os.Remove(path); err != nil {
			errs = append(errs, goerr.Wrap(err, "failed to remove backup", goerr.V("path", path)))
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
