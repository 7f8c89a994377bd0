package backup

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	namePrefix = "physlab-"
	nameSuffix = ".db"
	timeLayout = "20060102-150405"
)

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Name returns the snapshot file name for t, e.g. physlab-20240901-101500.db.
func Name(t time.Time) string {
	return namePrefix + t.UTC().Format(timeLayout) + nameSuffix
}

// ParseName extracts the creation time from a snapshot name.
func ParseName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return time.Time{}, fmt.Errorf("not a snapshot name: %q", name)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	return time.Parse(timeLayout, stamp)
}

// List returns the snapshots in storage, oldest first.
func List(ctx context.Context, storage Storage) ([]string, error) {
	names, err := storage.List(ctx, namePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	snapshots := names[:0]
	for _, name := range names {
		if _, err := ParseName(name); err == nil {
			snapshots = append(snapshots, name)
		}
	}
	sort.Strings(snapshots)
	return snapshots, nil
}

// Prune deletes snapshots created before cutoff and returns their names.
// The newest snapshot is always kept.
func Prune(ctx context.Context, storage Storage, cutoff time.Time) ([]string, error) {
	snapshots, err := List(ctx, storage)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	var deleted []string
	for _, name := range snapshots[:len(snapshots)-1] {
		created, _ := ParseName(name)
		if !created.Before(cutoff) {
			break
		}
		if err := storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
