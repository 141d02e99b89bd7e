// Package main is the entry point for the mediatag server. It loads
// configuration, connects to MariaDB and Redis, runs migrations, wires the
// plugins and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/keyxmakerx/mediatag/internal/app"
	"github.com/keyxmakerx/mediatag/internal/config"
	"github.com/keyxmakerx/mediatag/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	slog.Info("starting mediatag",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
	)

	// --- Connect to MariaDB ---
	var db *sql.DB
	if cfg.StoreDriver == config.StoreMySQL {
		db, err = database.NewMariaDB(cfg.Database)
		if err != nil {
			slog.Error("failed to connect to MariaDB", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		slog.Warn("using the in-memory document store; data is lost on restart")
	}

	// --- Connect to Redis ---
	var rdb *redis.Client
	rdb, err = database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		slog.Info("connected to Redis")
	} else {
		slog.Info("REDIS_URL not set, move guard is process-local")
	}

	// --- Create Application ---
	application := app.New(cfg, db, rdb)
	application.RegisterRoutes()

	// --- Graceful Shutdown ---
	// In-flight requests and queued regenerations get the same deadline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Regen.Timeout+10*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	// Echo returns http.ErrServerClosed on graceful shutdown, which is expected.
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// setupLogging configures the global slog logger. Development uses text
// format for readability, production uses JSON. When LOG_FILE is set, logs
// are also written to a size-rotated file.
func setupLogging(cfg *config.Config) func() {
	var out io.Writer = os.Stdout
	closer := func() {}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = func() { _ = rotator.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
