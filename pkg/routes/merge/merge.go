// Package merge exposes merge preview, execution and history over HTTP.
package merge

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	mergeengine "github.com/dealdesk/bramble/pkg/merge"
	"github.com/dealdesk/bramble/pkg/models"
)

// HistoryLister reads the merge audit trail.
type HistoryLister interface {
	ListByLead(ctx context.Context, leadID int64) ([]models.MergeHistory, error)
}

// Handler handles merge endpoints
type Handler struct {
	planner  *mergeengine.Planner
	executor *mergeengine.Executor
	history  HistoryLister
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewHandler(planner *mergeengine.Planner, executor *mergeengine.Executor, history HistoryLister, logger ectologger.Logger) *Handler {
	return &Handler{
		planner:  planner,
		executor: executor,
		history:  history,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register registers merge routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/preview", h.Preview)
	g.POST("", h.Execute)
	g.GET("/history/:leadId", h.History)
}

// Preview reports what a merge would transfer without executing it.
func (h *Handler) Preview(c echo.Context) error {
	ctx := c.Request().Context()

	primaryID, err := parseIDQuery(c, "primary_id")
	if err != nil {
		return err
	}
	secondaryID, err := parseIDQuery(c, "secondary_id")
	if err != nil {
		return err
	}

	plan, err := h.planner.Plan(ctx, primaryID, secondaryID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, plan)
}

// Execute merges the secondary lead into the primary.
func (h *Handler) Execute(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid merge request: %v", err)
	}

	result, err := h.executor.Merge(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// History lists past merges where the lead was the surviving primary.
func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()

	leadID, err := parseIDParam(c, "leadId")
	if err != nil {
		return err
	}

	history, err := h.history.ListByLead(ctx, leadID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, history)
}

func parseIDQuery(c echo.Context, param string) (int64, error) {
	return parseID(param, c.QueryParam(param))
}

func parseIDParam(c echo.Context, param string) (int64, error) {
	return parseID(param, c.Param(param))
}

func parseID(param, raw string) (int64, error) {
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}
	return id, nil
}
