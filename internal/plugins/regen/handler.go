package regen

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// Handler handles HTTP requests for taxonomy regeneration.
type Handler struct {
	service    Service
	dispatcher *Dispatcher
}

// NewHandler creates a new regeneration handler.
func NewHandler(service Service, dispatcher *Dispatcher) *Handler {
	return &Handler{service: service, dispatcher: dispatcher}
}

type entityRequest struct {
	Path string `json:"path" validate:"required"`
}

type bulkRequest struct {
	ParentType string `json:"parentType" validate:"required,oneof=campaign tactic placement"`
	Path       string `json:"path" validate:"required"`
}

type patchResponse struct {
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields"`
}

// bindRef binds and validates req, then parses path as a document of the
// client in the URL.
func bindRef(c echo.Context, req any, path *string) (campaigns.Ref, error) {
	if err := c.Bind(req); err != nil {
		return campaigns.Ref{}, apperror.NewBadRequest("invalid request")
	}
	if err := c.Validate(req); err != nil {
		return campaigns.Ref{}, apperror.NewValidation(err.Error())
	}
	ref, err := campaigns.ParseRef(*path)
	if err != nil {
		return campaigns.Ref{}, apperror.NewBadRequest(err.Error())
	}
	if ref.ClientID != c.Param("clientID") {
		return campaigns.Ref{}, apperror.NewBadRequest("path belongs to another client")
	}
	return ref, nil
}

// Preview returns the generated fields of an entity without writing them
// (POST /taxonomy/preview).
func (h *Handler) Preview(c echo.Context) error {
	var req entityRequest
	ref, err := bindRef(c, &req, &req.Path)
	if err != nil {
		return err
	}
	patch, err := h.service.Preview(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patchResponse{Path: ref.Path(), Fields: patch})
}

// Regenerate rewrites the generated fields of an entity
// (POST /taxonomy/regenerate).
func (h *Handler) Regenerate(c echo.Context) error {
	var req entityRequest
	ref, err := bindRef(c, &req, &req.Path)
	if err != nil {
		return err
	}
	patch, err := h.service.RegenerateEntity(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patchResponse{Path: ref.Path(), Fields: patch})
}

// Bulk queues a regeneration of every entity under a parent
// (POST /taxonomy/bulk). It answers 202 with the queued job.
func (h *Handler) Bulk(c echo.Context) error {
	var req bulkRequest
	ref, err := bindRef(c, &req, &req.Path)
	if err != nil {
		return err
	}
	pt := ParentType(req.ParentType)
	if want := parentDepth[pt]; ref.Depth() != want {
		return apperror.NewBadRequest("path does not point at a " + req.ParentType)
	}

	job, err := h.dispatcher.Submit(pt, ref)
	switch {
	case errors.Is(err, ErrQueueFull):
		return apperror.NewUnavailable("regeneration queue is full, retry later")
	case err != nil:
		return apperror.NewInternal(err)
	}
	return c.JSON(http.StatusAccepted, job)
}

// parentDepth is the tree depth of each parent type.
var parentDepth = map[ParentType]int{
	ParentCampaign:  1,
	ParentTactic:    5,
	ParentPlacement: 6,
}
