package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		BodyLimitBytes  int64         `yaml:"body_limit_bytes"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Realtime struct {
		Path            string        `yaml:"path"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		SendBuffer      int           `yaml:"send_buffer"`
		MaxMessageBytes int64         `yaml:"max_message_bytes"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"realtime"`

	Database struct {
		Path         string        `yaml:"path"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		BusyTimeout  time.Duration `yaml:"busy_timeout"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret        string        `yaml:"jwt_secret"`
		TokenTTL         time.Duration `yaml:"token_ttl"`
		Issuer           string        `yaml:"issuer"`
		BotToken         string        `yaml:"bot_token"`
		InitDataMaxAge   time.Duration `yaml:"init_data_max_age"`
		AdminTelegramIDs []string      `yaml:"admin_telegram_ids"`
	} `yaml:"auth"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`

	Cache struct {
		AnalyticsTTL time.Duration `yaml:"analytics_ttl"`
	} `yaml:"cache"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Interval      time.Duration `yaml:"interval"`
		Directory     string        `yaml:"directory"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

const sqliteMemoryPath = ":memory:"

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if c.Server.BodyLimitBytes <= 0 {
		return fmt.Errorf("server.body_limit_bytes must be > 0")
	}

	// Realtime
	if c.Realtime.Path == "" || !strings.HasPrefix(c.Realtime.Path, "/") {
		return fmt.Errorf("realtime.path must start with /")
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.ping_interval must be > 0")
	}
	if c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_timeout must be greater than realtime.ping_interval")
	}
	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime.write_timeout must be > 0")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be > 0")
	}
	if c.Realtime.MaxMessageBytes <= 0 {
		return fmt.Errorf("realtime.max_message_bytes must be > 0")
	}

	// Database
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.InitDataMaxAge < 0 {
		return fmt.Errorf("auth.init_data_max_age must be >= 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Cache
	if c.Cache.AnalyticsTTL < 0 {
		return fmt.Errorf("cache.analytics_ttl must be >= 0")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("backup.retention_days must be >= 0")
		}
		if c.Database.Path == sqliteMemoryPath {
			return fmt.Errorf("backup requires a file database")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":3001"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.BodyLimitBytes = 10 << 20
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Realtime.Path = "/ws"
	cfg.Realtime.PingInterval = 25 * time.Second
	cfg.Realtime.PongTimeout = 60 * time.Second
	cfg.Realtime.WriteTimeout = 10 * time.Second
	cfg.Realtime.SendBuffer = 64
	cfg.Realtime.MaxMessageBytes = 64 * 1024
	cfg.Realtime.AllowedOrigins = []string{"*"}

	cfg.Database.Path = "data/physlab.db"
	cfg.Database.MaxOpenConns = 1
	cfg.Database.BusyTimeout = 5 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "physlab:events"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 7 * 24 * time.Hour
	cfg.Auth.Issuer = "physlab"
	cfg.Auth.InitDataMaxAge = 0

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	cfg.Tracing.Environment = "development"

	cfg.Cache.AnalyticsTTL = 30 * time.Second

	cfg.Backup.Enabled = false
	cfg.Backup.Interval = 24 * time.Hour
	cfg.Backup.Directory = "data/backups"
	cfg.Backup.RetentionDays = 7

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("PHYSLAB_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("PHYSLAB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("PHYSLAB_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if token := os.Getenv("PHYSLAB_BOT_TOKEN"); token != "" {
		c.Auth.BotToken = token
	}
	if ids := os.Getenv("PHYSLAB_ADMIN_TELEGRAM_IDS"); ids != "" {
		c.Auth.AdminTelegramIDs = splitList(ids)
	}
	if path := os.Getenv("PHYSLAB_DATABASE_PATH"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("PHYSLAB_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if enabled := os.Getenv("PHYSLAB_REDIS_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Redis.Enabled = v
		}
	}
	if enabled := os.Getenv("PHYSLAB_BACKUP_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Backup.Enabled = v
		}
	}
	if dir := os.Getenv("PHYSLAB_BACKUP_DIR"); dir != "" {
		c.Backup.Directory = dir
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
