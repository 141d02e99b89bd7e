package regen

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the taxonomy regeneration routes on a client-scoped
// API group (/api/v1/clients/:clientID).
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/taxonomy/preview", h.Preview)
	g.POST("/taxonomy/regenerate", h.Regenerate)
	g.POST("/taxonomy/bulk", h.Bulk)
}
