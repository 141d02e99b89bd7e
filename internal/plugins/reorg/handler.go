package reorg

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// Handler handles HTTP requests for hierarchy moves.
type Handler struct {
	service MoveService
}

// NewHandler creates a new move handler.
func NewHandler(service MoveService) *Handler {
	return &Handler{service: service}
}

// Move re-parents an entity (POST /moves). It answers 202: the move is
// done, the taxonomy regeneration it triggers is still queued.
func (h *Handler) Move(c echo.Context) error {
	var req MoveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return apperror.NewValidation(err.Error())
	}

	res, err := h.service.Move(c.Request().Context(), c.Param("clientID"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, res)
}
