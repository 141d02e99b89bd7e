// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (document store, DB pool,
// Redis client, Echo instance, regeneration dispatcher) and wires together
// all plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/config"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/middleware"
	"github.com/keyxmakerx/mediatag/internal/plugins/regen"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool. Nil with the memory store driver.
	DB *sql.DB

	// Redis backs the move guard. Nil when REDIS_URL is unset; the guard
	// then only coordinates within this process.
	Redis *redis.Client

	// Store is the campaign tree document store.
	Store docstore.Store

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// dispatcher runs post-move regenerations; set by RegisterRoutes and
	// drained by Shutdown.
	dispatcher *regen.Dispatcher
}

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling. A nil db
// selects the in-memory document store.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message; we log our own.
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}

	middleware.TrustedProxies(e, []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	var store docstore.Store
	if db != nil {
		store = docstore.NewMySQL(db)
	} else {
		store = docstore.NewMemory()
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Store:  store,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery, outermost so it catches panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request id, read back by the request logger.
	a.Echo.Use(echomw.RequestID())

	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Metrics())
	a.Echo.Use(middleware.SecurityHeaders())

	// Tree documents and move requests are small.
	a.Echo.Use(echomw.BodyLimit("1M"))
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// errorHandler maps domain errors (AppError) and Echo's own HTTP errors to
// JSON responses. Internal causes are logged, never returned.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"
	typ := ""

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		typ = appErr.Type
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{
		Error:   http.StatusText(code),
		Type:    typ,
		Message: message,
	})
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting mediatag server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("store", a.Config.StoreDriver),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops the HTTP server, then drains queued regenerations.
func (a *App) Shutdown(ctx context.Context) error {
	httpErr := a.Echo.Shutdown(ctx)
	var regenErr error
	if a.dispatcher != nil {
		regenErr = a.dispatcher.Close(ctx)
	}
	return errors.Join(httpErr, regenErr)
}
