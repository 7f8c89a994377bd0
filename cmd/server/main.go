package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"physlab/internal/core/services"
	"physlab/internal/infrastructure/backup"
	httphandlers "physlab/internal/handlers/http"
	"physlab/internal/infrastructure/distributed"
	"physlab/internal/infrastructure/monitoring"
	"physlab/internal/infrastructure/realtime"
	repositories "physlab/internal/infrastructure/repositories"
	"physlab/internal/infrastructure/repositories/sqlite"
	backupstorage "physlab/pkg/backup"
	"physlab/pkg/config"
	redislock "physlab/pkg/distributed"
	"physlab/pkg/logger"
	"physlab/pkg/tracing"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	configPaths := []string{
		os.Getenv("PHYSLAB_CONFIG"),
		"configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		if path == "" {
			continue
		}
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("failed to load config, using defaults", "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "physlab",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("failed to initialize tracing", "error", err)
		tp = &tracing.TracerProvider{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	users := repoFactory.CreateUserRepository()
	materials := repoFactory.CreateMaterialRepository()
	progress := repoFactory.CreateProgressRepository()
	achievements := repoFactory.CreateAchievementRepository()
	tests := repoFactory.CreateTestRepository()
	results := repoFactory.CreateTestResultRepository()
	analytics := repoFactory.CreateAnalyticsRepository()
	tx := repoFactory.CreateTransactor()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	policy := services.DefaultAccessPolicy()

	hub := realtime.NewHub(policy, collector, log)
	notifier := realtime.NewNotifier(hub, log)

	authService := services.NewAuthService(services.AuthConfig{
		JWTSecret:        cfg.Auth.JWTSecret,
		TokenTTL:         cfg.Auth.TokenTTL,
		Issuer:           cfg.Auth.Issuer,
		AdminTelegramIDs: cfg.Auth.AdminTelegramIDs,
	}, services.NewTelegramVerifier(cfg.Auth.BotToken, cfg.Auth.InitDataMaxAge), users, achievements, tx, log)
	materialService := services.NewMaterialService(materials, users, policy, notifier, log)
	studentService := services.NewStudentService(services.StudentRepos{
		Users:        users,
		Materials:    materials,
		Progress:     progress,
		Achievements: achievements,
		Tests:        tests,
		Results:      results,
		Tx:           tx,
	}, notifier, log)
	teacherService := services.NewTeacherService(users, progress, achievements, tests, results, analytics, policy, log)
	messageService := services.NewMessageService(repoFactory.CreateMessageRepository(), users, tx, policy, notifier, log)
	scheduleService := services.NewScheduleService(repoFactory.CreateScheduleRepository(), policy, log)
	analyticsService := services.NewAnalyticsService(analytics, cfg.Cache.AnalyticsTTL, log)

	var bus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		bus = distributed.NewEventBus(client, distributed.Options{
			Channel:    cfg.Redis.Channel,
			InstanceID: utils.GenerateInstanceID(),
		}, log)
		hub.SetRelay(bus)
	}

	var backups *backup.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backupstorage.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to create backup storage", "error", err)
		}
		backups = backup.NewScheduler(func(ctx context.Context, dst string) error {
			return sqlite.Snapshot(ctx, repoFactory.DB(), dst)
		}, storage, notifier, backup.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
		if client := repoFactory.RedisClient(); client != nil {
			backups.SetLease(redislock.NewLockManager(client, "physlab:lock:").Lock("backup"))
		}
	}

	rtCfg := realtime.Config{
		PingInterval:    cfg.Realtime.PingInterval,
		PongTimeout:     cfg.Realtime.PongTimeout,
		WriteTimeout:    cfg.Realtime.WriteTimeout,
		SendBuffer:      cfg.Realtime.SendBuffer,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		AllowedOrigins:  cfg.Realtime.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		rtCfg.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		rtCfg.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	rtServer := realtime.NewServer(hub, rtCfg, realtime.Deps{
		Auth:      authService,
		Messages:  messageService,
		Students:  studentService,
		Materials: materials,
		Notifier:  notifier,
	}, collector, log)

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(func(ctx context.Context) error {
		return sqlite.Ping(ctx, repoFactory.DB())
	}, 2*time.Second)
	health.AddRedisCheck(repoFactory.RedisClient(), 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config: cfg,
		Services: httphandlers.Services{
			Auth:      authService,
			Materials: materialService,
			Students:  studentService,
			Teachers:  teacherService,
			Messages:  messageService,
			Schedule:  scheduleService,
			Analytics: analyticsService,
		},
		Policy:      policy,
		Health:      health,
		Connections: hub,
		Realtime:    rtServer,
		Gatherer:    prometheus.DefaultGatherer,
		Metrics:     collector,
		Logger:      zapLogger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("starting physlab server", "address", cfg.Server.Address, "realtime_path", cfg.Realtime.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bus != nil {
		g.Go(func() error {
			if err := bus.Run(gctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if backups != nil {
		g.Go(func() error { return backups.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down physlab server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during server shutdown", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Errorw("error force closing server", "error", closeErr)
			}
		}
		hub.Close()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error shutting down tracing", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server stopped with error", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	log.Info("physlab server stopped")
}
