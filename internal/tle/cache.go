package tle

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoSnapshot is returned by LoadLatest when the directory holds no snapshot.
var ErrNoSnapshot = errors.New("no catalog snapshot on disk")

const (
	snapshotPrefix = "catalog_"
	snapshotSuffix = ".tle"
)

// DiskCache keeps the most recent raw catalog downloads so a restart can
// serve searches before the first fetch completes.
type DiskCache struct {
	dir  string
	keep int
}

// NewDiskCache stores snapshots in dir and keeps at most keep of them.
func NewDiskCache(dir string, keep int) *DiskCache {
	if keep <= 0 {
		keep = 5
	}
	return &DiskCache{dir: dir, keep: keep}
}

// Write saves a snapshot named after ts and prunes the oldest beyond keep.
func (c *DiskCache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	name := snapshotPrefix + strconv.FormatInt(ts.Unix(), 10) + snapshotSuffix
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return c.prune()
}

// LoadLatest returns the newest snapshot and its timestamp.
func (c *DiskCache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.list()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, ErrNoSnapshot
	}
	latest := snaps[len(snaps)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, latest.ts, nil
}

type snapshot struct {
	name string
	ts   time.Time
}

// list returns snapshots oldest first. Unrelated files are ignored.
func (c *DiskCache) list() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(e.Name(), snapshotPrefix)
		if !ok {
			continue
		}
		stamp, ok = strings.CutSuffix(stamp, snapshotSuffix)
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{name: e.Name(), ts: time.Unix(unix, 0).UTC()})
	}
	slices.SortFunc(snaps, func(a, b snapshot) int { return cmp.Compare(a.ts.Unix(), b.ts.Unix()) })
	return snaps, nil
}

func (c *DiskCache) prune() error {
	snaps, err := c.list()
	if err != nil || len(snaps) <= c.keep {
		return err
	}
	for _, s := range snaps[:len(snaps)-c.keep] {
		if err := os.Remove(filepath.Join(c.dir, s.name)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", s.name, err)
		}
	}
	return nil
}
