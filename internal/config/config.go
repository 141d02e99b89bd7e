// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. A .env file in the working directory is loaded first when
// present; real environment variables always win over it.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// LogFile, when set, additionally writes logs to a rotated file.
	LogFile string

	// StoreDriver selects the document store backend: "mysql" or "memory".
	StoreDriver string

	// MigrationsPath is the directory holding the .up/.down.sql files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Regen holds taxonomy regeneration settings.
	Regen RegenConfig

	// Move holds hierarchy move settings.
	Move MoveConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters. An empty URL disables
// Redis and the move guard falls back to an in-process lock.
type RedisConfig struct {
	URL string
}

// RegenConfig controls the background regeneration dispatcher.
type RegenConfig struct {
	// Workers is the number of background regeneration workers.
	Workers int

	// QueueSize bounds the number of pending regeneration tasks.
	QueueSize int

	// Timeout caps one bulk regeneration run.
	Timeout time.Duration
}

// MoveConfig controls the hierarchy move guard.
type MoveConfig struct {
	// LockTTL is the hard timeout after which a stuck move lock is released.
	LockTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		LogFile:        getEnv("LOG_FILE", ""),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreMySQL)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "mediatag"),
			Password:        getEnv("DB_PASSWORD", "mediatag"),
			Name:            getEnv("DB_NAME", "mediatag"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},

		Regen: RegenConfig{
			Workers:   getEnvInt("REGEN_WORKERS", 1),
			QueueSize: getEnvInt("REGEN_QUEUE_SIZE", 64),
			Timeout:   getEnvDuration("REGEN_TIMEOUT", 2*time.Minute),
		},

		Move: MoveConfig{
			LockTTL: getEnvDuration("MOVE_LOCK_TTL", 30*time.Second),
		},
	}

	switch cfg.StoreDriver {
	case StoreMySQL, StoreMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMySQL, StoreMemory, cfg.StoreDriver)
	}
	if cfg.Regen.Workers < 1 {
		return nil, fmt.Errorf("REGEN_WORKERS must be at least 1")
	}
	if cfg.Move.LockTTL <= 0 {
		return nil, fmt.Errorf("MOVE_LOCK_TTL must be positive")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
