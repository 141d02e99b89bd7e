package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for audit log operations. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// activityResponse is the JSON body of the activity feed.
type activityResponse struct {
	Entries []AuditEntry `json:"entries"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"perPage"`
}

// Activity returns the client activity feed
// (GET /api/v1/clients/:clientID/activity?campaignId=&page=).
func (h *Handler) Activity(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	entries, total, err := h.service.GetClientActivity(c.Request().Context(),
		c.Param("clientID"), c.QueryParam("campaignId"), page)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []AuditEntry{}
	}

	return c.JSON(http.StatusOK, activityResponse{Entries: entries, Total: total, Page: page, PerPage: perPage})
}

// EntityHistory returns the actions recorded on one document
// (GET /api/v1/clients/:clientID/activity/entity?path=).
func (h *Handler) EntityHistory(c echo.Context) error {
	entries, err := h.service.GetEntityHistory(c.Request().Context(), c.QueryParam("path"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []AuditEntry{}
	}

	return c.JSON(http.StatusOK, entries)
}
