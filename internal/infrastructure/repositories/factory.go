package repositories

import (
	"context"
	"errors"
	"fmt"

	"physlab/internal/core/ports"
	redisrepo "physlab/internal/infrastructure/repositories/redis"
	"physlab/internal/infrastructure/repositories/sqlite"
	"physlab/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory owns the store connection and the optional broker client.
type RepositoryFactory struct {
	db          *gorm.DB
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory opens the SQLite store and, when enabled, connects to Redis.
// A Redis failure is not fatal: realtime fan-out then stays in-process.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	db, err := sqlite.Open(sqlite.Options{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	factory := &RepositoryFactory{db: db, logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, realtime fan-out stays in-process",
				"error", err,
			)
		} else {
			factory.redisClient = client
		}
	}

	if factory.redisClient == nil {
		logger.Info("running without a shared broker")
	}

	return factory, nil
}

// NewRepositoryFactoryWithDB wraps an already opened store.
func NewRepositoryFactoryWithDB(db *gorm.DB, logger *zap.SugaredLogger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

func (f *RepositoryFactory) DB() *gorm.DB { return f.db }

// RedisClient returns nil when no broker is connected.
func (f *RepositoryFactory) RedisClient() *redis.Client { return f.redisClient }

func (f *RepositoryFactory) CreateTransactor() ports.Transactor {
	return sqlite.NewStore(f.db)
}

func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	return sqlite.NewUserRepository(f.db)
}

func (f *RepositoryFactory) CreateMaterialRepository() ports.MaterialRepository {
	return sqlite.NewMaterialRepository(f.db)
}

func (f *RepositoryFactory) CreateProgressRepository() ports.ProgressRepository {
	return sqlite.NewProgressRepository(f.db)
}

func (f *RepositoryFactory) CreateAchievementRepository() ports.AchievementRepository {
	return sqlite.NewAchievementRepository(f.db)
}

func (f *RepositoryFactory) CreateTestRepository() ports.TestRepository {
	return sqlite.NewTestRepository(f.db)
}

func (f *RepositoryFactory) CreateTestResultRepository() ports.TestResultRepository {
	return sqlite.NewTestResultRepository(f.db)
}

func (f *RepositoryFactory) CreateMessageRepository() ports.MessageRepository {
	return sqlite.NewMessageRepository(f.db)
}

func (f *RepositoryFactory) CreateScheduleRepository() ports.ScheduleRepository {
	return sqlite.NewScheduleRepository(f.db)
}

func (f *RepositoryFactory) CreateAnalyticsRepository() ports.AnalyticsRepository {
	return sqlite.NewAnalyticsRepository(f.db)
}

// Close closes the broker client and the store.
func (f *RepositoryFactory) Close() error {
	var errs []error
	if err := redisrepo.CloseRedisClient(f.redisClient); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if f.db != nil {
		if err := sqlite.Close(f.db); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck pings the store and, if connected, Redis.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if err := sqlite.Ping(ctx, f.db); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
