package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/pkg/backup"
	"physlab/pkg/utils"

	"go.uber.org/zap"
)

const maxErrorLength = 200

// SnapshotFunc writes a consistent copy of the database to dst.
type SnapshotFunc func(ctx context.Context, dst string) error

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
	TempDir       string // scratch space for the snapshot before it is stored; empty uses os.TempDir
}

// Lease keeps instances that share one database from backing it up in the
// same interval.
type Lease interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, ttl time.Duration) error
}

// Result describes one completed backup.
type Result struct {
	Name      string    `json:"backup"`
	SizeBytes int64     `json:"size_bytes"`
	Pruned    []string  `json:"pruned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Scheduler takes periodic database snapshots, keeps them for the retention
// window and tells admins about every run.
type Scheduler struct {
	snapshot SnapshotFunc
	storage  backup.Storage
	notifier ports.Notifier
	cfg      Config
	lease    Lease
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewScheduler creates a new backup scheduler
func NewScheduler(snapshot SnapshotFunc, storage backup.Storage, notifier ports.Notifier, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		snapshot: snapshot,
		storage:  storage,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetLease makes every run take l first. The lease is held for most of an
// interval and never released, so at most one instance backs up per interval.
func (s *Scheduler) SetLease(l Lease) {
	s.lease = l
}

// Run backs up immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runBackup(ctx)
	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if s.lease != nil {
		ttl := s.cfg.Interval * 9 / 10
		ok, err := s.lease.TryLock(ctx, ttl)
		if err != nil {
			s.logger.Warnw("failed to take backup lease", "error", err)
			return
		}
		if !ok {
			s.logger.Debug("backup lease held by another instance, skipping")
			return
		}
		stop := s.keepLease(ctx, ttl)
		defer stop()
	}
	s.logger.Info("starting scheduled backup")

	res, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Errorw("scheduled backup failed", "error", err)
		s.notifier.SystemNotification(ctx, domain.RoleAdmin, map[string]interface{}{
			"type":      "backup_failed",
			"error":     utils.TruncateString(err.Error(), maxErrorLength),
			"timestamp": s.now().UTC(),
		})
		return
	}

	s.logger.Infow("backup created successfully", "backup_name", res.Name, "size_bytes", res.SizeBytes, "pruned", len(res.Pruned))
	s.notifier.SystemNotification(ctx, domain.RoleAdmin, map[string]interface{}{
		"type":      "backup_completed",
		"backup":    res,
		"timestamp": res.CreatedAt,
	})
}

// keepLease extends the lease every half ttl until stop is called, so a run
// that outlasts ttl still excludes other instances.
func (s *Scheduler) keepLease(ctx context.Context, ttl time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.lease.Extend(ctx, ttl); err != nil {
					if ctx.Err() == nil {
						s.logger.Warnw("failed to extend backup lease", "error", err)
					}
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// RunOnce snapshots the database into storage and prunes expired snapshots.
// A prune failure is logged and does not fail the backup.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	createdAt := s.now().UTC()

	dir, err := os.MkdirTemp(s.cfg.TempDir, "physlab-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if err := s.snapshot(ctx, path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	res := &Result{Name: backup.Name(createdAt), SizeBytes: info.Size(), CreatedAt: createdAt}
	if err := s.storage.Save(ctx, res.Name, f); err != nil {
		return nil, fmt.Errorf("failed to save backup: %w", err)
	}

	if s.cfg.RetentionDays > 0 {
		cutoff := createdAt.AddDate(0, 0, -s.cfg.RetentionDays)
		pruned, err := backup.Prune(ctx, s.storage, cutoff)
		if err != nil {
			s.logger.Warnw("failed to cleanup old backups", "error", err)
		}
		res.Pruned = pruned
	}
	return res, nil
}
