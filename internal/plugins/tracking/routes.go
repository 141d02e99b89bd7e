package tracking

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the CM360 tag routes on a client-scoped API group
// (/api/v1/clients/:clientID).
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/tags", h.History)
	g.POST("/tags", h.Create)
	g.DELETE("/tags", h.Cancel)
	g.POST("/tags/confirm", h.Confirm)
	g.GET("/tags/field-history", h.FieldHistory)
	g.GET("/tags/changed", h.Changed)
	g.GET("/tags/changed/export", h.ExportChanged)
}
