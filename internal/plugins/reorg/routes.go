package reorg

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the move route on a client-scoped API group
// (/api/v1/clients/:clientID).
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/moves", h.Move)
}
