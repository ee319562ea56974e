// Package config resolves riskctl settings from the environment and an
// optional .env file. Command-line flags override both; see internal/cli.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/roach88/riskctl/internal/store"
)

// Environment variable names.
const (
	EnvBackend       = "RISKCTL_BACKEND"
	EnvDB            = "RISKCTL_DB"
	EnvRedisAddr     = "RISKCTL_REDIS_ADDR"
	EnvRedisPassword = "RISKCTL_REDIS_PASSWORD"
	EnvRedisDB       = "RISKCTL_REDIS_DB"
	EnvRedisPrefix   = "RISKCTL_REDIS_PREFIX"
	EnvLogLevel      = "RISKCTL_LOG_LEVEL"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Defaults.
const (
	DefaultSQLitePath = "riskctl.db"
	DefaultBadgerPath = "riskctl.badger"
	DefaultRedisAddr  = "localhost:6379"
)

// ErrInvalid marks a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Backend       string
	DB            string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	LogLevel      slog.Level
}

// Load reads envFiles (".env" when none given; missing files are skipped)
// and resolves the configuration. Process environment wins over file
// values. The process environment is never modified.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	fileVals := make(map[string]string)
	for _, path := range envFiles {
		vals, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range vals {
			if _, ok := fileVals[k]; !ok {
				fileVals[k] = v
			}
		}
	}

	return Resolve(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	})
}

// Resolve builds a Config from lookup and applies defaults.
func Resolve(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Backend:       strings.ToLower(get(EnvBackend)),
		DB:            get(EnvDB),
		RedisAddr:     get(EnvRedisAddr),
		RedisPassword: get(EnvRedisPassword),
		RedisPrefix:   get(EnvRedisPrefix),
	}

	if v := get(EnvRedisDB); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%w: %s=%q is not a database number", ErrInvalid, EnvRedisDB, v)
		}
		cfg.RedisDB = n
	}

	if v := get(EnvLogLevel); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalid, EnvLogLevel, v)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills defaults and validates the backend. Call it again after
// flags override fields.
func (c *Config) Normalize() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	switch c.Backend {
	case BackendSQLite:
		if c.DB == "" {
			c.DB = DefaultSQLitePath
		}
	case BackendBadger:
		if c.DB == "" {
			c.DB = DefaultBadgerPath
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			c.RedisAddr = DefaultRedisAddr
		}
		if c.RedisPrefix == "" {
			c.RedisPrefix = store.DefaultRedisPrefix
		}
	default:
		return fmt.Errorf("%w: unknown backend %q (want sqlite, badger or redis)", ErrInvalid, c.Backend)
	}
	return nil
}

// OpenStore opens the configured backend.
func (c Config) OpenStore(ctx context.Context, logger *slog.Logger) (*store.Store, error) {
	var (
		b   store.Backend
		err error
	)
	switch c.Backend {
	case BackendSQLite:
		b, err = store.OpenSQLite(c.DB)
	case BackendBadger:
		b, err = store.OpenBadger(store.BadgerConfig{Path: c.DB, SyncWrites: true, Logger: logger})
	case BackendRedis:
		b, err = store.OpenRedis(ctx, store.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Backend, err)
	}
	return store.New(b), nil
}
