package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures the server runtime parameters.
type Config struct {
	HTTPAddress         string         `mapstructure:"http_address"`
	LogLevel            string         `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration  `mapstructure:"-"`
	Storage             StorageConfig  `mapstructure:"storage"`
	Database            DatabaseConfig `mapstructure:"database"`
	Redis               RedisConfig    `mapstructure:"redis"`
	JWT                 JWTConfig      `mapstructure:"jwt"`
	Cookie              CookieConfig   `mapstructure:"cookie"`
	Chat                ChatConfig     `mapstructure:"chat"`
	Realtime            RealtimeConfig `mapstructure:"realtime"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"-"`
}

// RedisConfig enables cross-instance fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"-"`
}

type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Secure bool   `mapstructure:"secure"`
}

type ChatConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type RealtimeConfig struct {
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	EventTimeout   time.Duration `mapstructure:"-"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const (
	defaultHTTPAddress         = ":8080"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultMaxOpenConns        = 25
	defaultConnMaxLifetime     = 5 * time.Minute
	defaultRedisChannel        = "codemate:realtime"
	defaultJWTIssuer           = "codemate"
	defaultJWTTTL              = 24 * time.Hour
	defaultCookieName          = "token"
	defaultPageSize            = 20
	defaultMaxPageSize         = 100
	defaultMaxMessageSize      = 8 * 1024
	defaultSendBuffer          = 256
	defaultEventTimeout        = 10 * time.Second
)

var durationKeys = []string{
	"shutdown_grace_period",
	"database.conn_max_lifetime",
	"jwt.ttl",
	"realtime.event_timeout",
}

// Load reads configuration from an optional .env file, the provided file path (if any) and
// the environment. Environment variables are prefixed with CODEMATE_ and override file values.
func Load(path string) (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEMATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_address", defaultHTTPAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxOpenConns)
	v.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime.String())
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", defaultRedisChannel)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", defaultJWTIssuer)
	v.SetDefault("jwt.ttl", defaultJWTTTL.String())
	v.SetDefault("cookie.name", defaultCookieName)
	v.SetDefault("cookie.secure", false)
	v.SetDefault("chat.default_page_size", defaultPageSize)
	v.SetDefault("chat.max_page_size", defaultMaxPageSize)
	v.SetDefault("realtime.max_message_size", defaultMaxMessageSize)
	v.SetDefault("realtime.send_buffer", defaultSendBuffer)
	v.SetDefault("realtime.event_timeout", defaultEventTimeout.String())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Durations are normalized here rather than through mapstructure hooks.
	durations := make(map[string]time.Duration, len(durationKeys))
	for _, key := range durationKeys {
		dur, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = dur
	}
	cfg.ShutdownGracePeriod = durations["shutdown_grace_period"]
	cfg.Database.ConnMaxLifetime = durations["database.conn_max_lifetime"]
	cfg.JWT.TTL = durations["jwt.ttl"]
	cfg.Realtime.EventTimeout = durations["realtime.event_timeout"]

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Chat.MaxPageSize <= 0 {
		cfg.Chat.MaxPageSize = defaultMaxPageSize
	}
	if cfg.Chat.DefaultPageSize <= 0 || cfg.Chat.DefaultPageSize > cfg.Chat.MaxPageSize {
		cfg.Chat.DefaultPageSize = min(defaultPageSize, cfg.Chat.MaxPageSize)
	}
	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = defaultSendBuffer
	}
	if cfg.Realtime.MaxMessageSize <= 0 {
		cfg.Realtime.MaxMessageSize = defaultMaxMessageSize
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret is not set"))
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	return errors.Join(errs...)
}
