package tracking

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// Handler handles HTTP requests for CM360 tag operations. Handlers are thin:
// bind request, call service, render response.
type Handler struct {
	service TagService
}

// NewHandler creates a new tracking handler.
func NewHandler(service TagService) *Handler {
	return &Handler{service: service}
}

// entityRequest identifies one tracked entity in a body or query string.
type entityRequest struct {
	Kind string `json:"kind" query:"kind" validate:"required,oneof=placement creative tactic_metrics"`
	Path string `json:"path" query:"path" validate:"required"`
}

type fieldHistoryRequest struct {
	entityRequest
	Field string `query:"field" validate:"required"`
}

type changedRequest struct {
	CampaignID string `query:"campaignId" validate:"required"`
	Kind       string `query:"kind" validate:"required,oneof=placement creative tactic_metrics"`
}

func bindEntity(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if err := c.Validate(req); err != nil {
		return apperror.NewValidation(err.Error())
	}
	return nil
}

func (r entityRequest) ref(c echo.Context) EntityRef {
	return EntityRef{ClientID: c.Param("clientID"), Kind: EntityKind(r.Kind), Path: r.Path}
}

// History returns an entity's tag history (GET /tags?kind=&path=).
func (h *Handler) History(c echo.Context) error {
	var req entityRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	hist, err := h.service.GetHistory(c.Request().Context(), req.ref(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hist)
}

// Create takes the first tag of an entity (POST /tags).
func (h *Handler) Create(c echo.Context) error {
	var req entityRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	hist, err := h.service.CreateTag(c.Request().Context(), req.ref(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, hist)
}

// Confirm appends a new tag version after the ad server was updated
// (POST /tags/confirm).
func (h *Handler) Confirm(c echo.Context) error {
	var req entityRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	hist, err := h.service.ConfirmApplied(c.Request().Context(), req.ref(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hist)
}

// Cancel removes every tag of an entity (DELETE /tags?kind=&path=).
func (h *Handler) Cancel(c echo.Context) error {
	var req entityRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	if err := h.service.CancelTags(c.Request().Context(), req.ref(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// FieldHistory returns one field across tag versions
// (GET /tags/field-history?kind=&path=&field=).
func (h *Handler) FieldHistory(c echo.Context) error {
	var req fieldHistoryRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	fh, err := h.service.GetFieldHistory(c.Request().Context(), req.ref(c), req.Field)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fh)
}

// Changed lists the campaign entities whose live values drifted from their
// latest tag (GET /tags/changed?campaignId=&kind=).
func (h *Handler) Changed(c echo.Context) error {
	var req changedRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	changed, err := h.service.ListChangedEntities(c.Request().Context(),
		c.Param("clientID"), req.CampaignID, EntityKind(req.Kind))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changed)
}

// ExportChanged returns the changed-entity listing as an XLSX workbook
// (GET /tags/changed/export?campaignId=&kind=).
func (h *Handler) ExportChanged(c echo.Context) error {
	var req changedRequest
	if err := bindEntity(c, &req); err != nil {
		return err
	}
	kind := EntityKind(req.Kind)
	changed, err := h.service.ListChangedEntities(c.Request().Context(),
		c.Param("clientID"), req.CampaignID, kind)
	if err != nil {
		return err
	}
	data, err := ChangedWorkbook(kind, changed)
	if err != nil {
		return apperror.NewInternal(err)
	}
	filename := fmt.Sprintf("%s_%s_changed.xlsx", req.CampaignID, kind)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, XLSXContentType, data)
}
