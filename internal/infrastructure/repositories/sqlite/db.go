package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"physlab/internal/core/domain"
	"physlab/pkg/retry"
	"physlab/pkg/tracing"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures the SQLite connection.
type Options struct {
	Path         string
	MaxOpenConns int
	BusyTimeout  time.Duration
	LogLevel     logger.LogLevel
}

// DSN builds the go-sqlite3 connection string with the pragmas the store relies on.
func DSN(path string, busyTimeout time.Duration) string {
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", busyTimeout.Milliseconds())
	if path == MemoryPath {
		return "file::memory:?" + params
	}
	return fmt.Sprintf("file:%s?%s&_journal_mode=WAL", path, params)
}

// Open connects to SQLite, applies pool limits and migrates every model.
func Open(opts Options, log *zap.SugaredLogger) (*gorm.DB, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.Path != MemoryPath {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlitedriver.Open(DSN(opts.Path, opts.BusyTimeout)), &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	maxOpen := opts.MaxOpenConns
	// every in-memory connection is a separate database
	if maxOpen <= 0 || opts.Path == MemoryPath {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if log != nil {
		log.Infow("database opened", "path", opts.Path, "max_open_conns", maxOpen)
	}
	return db, nil
}

// Migrate creates or alters tables for every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&userModel{},
		&materialModel{},
		&progressModel{},
		&achievementModel{},
		&testModel{},
		&testResultModel{},
		&messageModel{},
		&scheduleModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Snapshot writes a consistent copy of the database to dst using VACUUM INTO.
// dst must not exist.
func Snapshot(ctx context.Context, db *gorm.DB, dst string) error {
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

type txKey struct{}

// Store implements ports.Transactor. Repositories look up the active
// transaction from the context, so calls made inside WithinTx share it.
type Store struct {
	db    *gorm.DB
	retry retry.Config
}

func NewStore(db *gorm.DB) *Store {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = time.Second
	cfg.Retryable = IsBusy
	return &Store{db: db, retry: cfg}
}

// WithinTx runs fn in a transaction. An outermost transaction that loses the
// write lock to another connection is rolled back and run again.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return traced(ctx, "transaction", "", func(ctx context.Context) error {
		return retry.Retry(ctx, s.retry, func() error {
			return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return fn(context.WithValue(ctx, txKey{}, tx))
			})
		})
	})
}

// traced runs fn inside a store span. Missing rows and version conflicts are
// outcomes, not span errors.
func traced(ctx context.Context, operation, table string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, operation, table)
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
		tracing.SetSpanStatus(ctx, codes.Ok, "")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrVersionConflict):
		tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String(err.Error()))
	default:
		tracing.RecordError(ctx, err)
	}
	return err
}

// IsBusy reports whether err is SQLite refusing a lock held by another connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// conn returns the transaction bound to ctx, or db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return domain.ErrDuplicate
	default:
		return err
	}
}

func applyLimit(q *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
