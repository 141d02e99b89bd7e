package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the audit routes on a client-scoped API group
// (/api/v1/clients/:clientID).
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/activity", h.Activity)
	g.GET("/activity/entity", h.EntityHistory)
}
