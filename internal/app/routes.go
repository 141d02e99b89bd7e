package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/mediatag/internal/middleware"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/regen"
	"github.com/keyxmakerx/mediatag/internal/plugins/reorg"
	"github.com/keyxmakerx/mediatag/internal/plugins/taxonomy"
	"github.com/keyxmakerx/mediatag/internal/plugins/tracking"
)

// RegisterRoutes wires every plugin and registers its routes. This is the
// single place where plugin dependencies are built.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Infrastructure ---

	e.GET("/healthz", a.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Repositories ---

	var (
		auditRepo audit.AuditRepository
		tagRepo   tracking.TagRepository
	)
	if a.DB != nil {
		auditRepo = audit.NewAuditRepository(a.DB)
		tagRepo = tracking.NewTagRepository(a.DB)
	} else {
		auditRepo = audit.NewMemoryAuditRepository()
		tagRepo = tracking.NewMemoryTagRepository()
	}
	tree := campaigns.NewTreeRepository(a.Store)
	regenerator := taxonomy.NewRegenerator(taxonomy.NewRepository(a.Store))

	var guard reorg.Guard
	if a.Redis != nil {
		guard = reorg.NewRedisGuard(a.Redis)
	} else {
		guard = reorg.NewMemoryGuard()
	}

	// --- Services ---

	auditSvc := audit.NewAuditService(auditRepo)
	tagSvc := tracking.NewTagService(tagRepo, a.Store, auditSvc)
	regenSvc := regen.NewService(tree, a.Store, regenerator, auditSvc)

	a.dispatcher = regen.NewDispatcher(
		regen.NewBulkRegenerator(tree, a.Store, regenerator),
		auditSvc,
		regen.DispatcherConfig{
			Workers:   a.Config.Regen.Workers,
			QueueSize: a.Config.Regen.QueueSize,
			Timeout:   a.Config.Regen.Timeout,
		},
	)
	moveSvc := reorg.NewMoveService(a.Store, guard, a.Config.Move.LockTTL, a.dispatcher, auditSvc)

	// --- Client-scoped API ---

	api := e.Group("/api/v1/clients/:clientID")
	audit.RegisterRoutes(api, audit.NewHandler(auditSvc))
	tracking.RegisterRoutes(api, tracking.NewHandler(tagSvc))

	// Writes that fan out over a whole subtree are rate limited per client.
	heavy := api.Group("", middleware.RateLimit(60, time.Minute, middleware.ByClient))
	regen.RegisterRoutes(heavy, regen.NewHandler(regenSvc, a.dispatcher))
	reorg.RegisterRoutes(heavy, reorg.NewHandler(moveSvc))
}

// health reports whether the database and Redis answer.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "store": a.Config.StoreDriver}
	code := http.StatusOK
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			status["status"], status["database"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			status["status"], status["redis"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}
