// Package duplicates exposes duplicate detection over HTTP.
package duplicates

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/dealdesk/bramble/pkg/grouping"
	"github.com/dealdesk/bramble/pkg/models"
	"github.com/dealdesk/bramble/pkg/scoring"
)

// LeadGetter loads snapshots for pair scoring.
type LeadGetter interface {
	GetSnapshot(ctx context.Context, id int64) (*models.LeadSnapshot, error)
}

// RunNotifier announces completed detection runs. Optional.
type RunNotifier interface {
	DuplicatesRecomputed(ctx context.Context, groupCount int, threshold float64) error
}

// Handler handles duplicate detection endpoints
type Handler struct {
	grouper          *grouping.Grouper
	leads            LeadGetter
	scorer           *scoring.Scorer
	notifier         RunNotifier
	defaultThreshold float64
	logger           ectologger.Logger
}

func NewHandler(grouper *grouping.Grouper, leads LeadGetter, scorer *scoring.Scorer, notifier RunNotifier, defaultThreshold float64, logger ectologger.Logger) *Handler {
	return &Handler{
		grouper:          grouper,
		leads:            leads,
		scorer:           scorer,
		notifier:         notifier,
		defaultThreshold: defaultThreshold,
		logger:           logger,
	}
}

// Register registers duplicate detection routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/score", h.ScorePair)
}

// List runs duplicate detection across all active leads.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	threshold := h.defaultThreshold
	if raw := c.QueryParam("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 100 {
			return httperror.NewHTTPError(http.StatusBadRequest, "threshold must be a number between 0 and 100")
		}
		threshold = parsed
	}

	groups, err := h.grouper.FindGroups(ctx, threshold)
	if err != nil {
		return err
	}

	if h.notifier != nil {
		if err := h.notifier.DuplicatesRecomputed(ctx, len(groups), threshold); err != nil {
			h.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicates recomputed event")
		}
	}

	return c.JSON(http.StatusOK, groups)
}

// ScorePair scores a single lead pair on demand.
func (h *Handler) ScorePair(c echo.Context) error {
	ctx := c.Request().Context()

	leadA, err := parseIDQuery(c, "lead_a")
	if err != nil {
		return err
	}
	leadB, err := parseIDQuery(c, "lead_b")
	if err != nil {
		return err
	}
	if leadA == leadB {
		return httperror.NewHTTPError(http.StatusBadRequest, "lead_a and lead_b must differ")
	}

	a, err := h.leads.GetSnapshot(ctx, leadA)
	if err != nil {
		return err
	}
	b, err := h.leads.GetSnapshot(ctx, leadB)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.scorer.Score(*a, *b))
}

func parseIDQuery(c echo.Context, param string) (int64, error) {
	raw := c.QueryParam(param)
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}
	return id, nil
}
