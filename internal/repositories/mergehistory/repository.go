// Package mergehistory persists the merge audit trail.
package mergehistory

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/dealdesk/bramble/internal/platform/database"
	"github.com/dealdesk/bramble/internal/platform/tracing"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
	"github.com/dealdesk/bramble/pkg/models"
)

var historyColumns = []string{
	"id", "primary_lead_id", "secondary_lead_id",
	"primary_address", "secondary_address",
	"merged_by", "merged_at", "reason", "items_merged",
}

// Repository handles merge history persistence
type Repository struct {
	db     *database.DB
	logger ectologger.Logger
}

func NewRepository(db *database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert writes one audit row. Runs after the merge commits; a failure here is
// the caller's to log, never to roll back on.
func (r *Repository) Insert(ctx context.Context, h *models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Insert")
	defer span.End()

	if h.MergedAt.IsZero() {
		h.MergedAt = time.Now().UTC()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("lead_merge_history")
	ib.Cols("primary_lead_id", "secondary_lead_id", "primary_address", "secondary_address",
		"merged_by", "merged_at", "reason", "items_merged")
	ib.Values(h.PrimaryLeadID, h.SecondaryLeadID, h.PrimaryAddress, h.SecondaryAddress,
		h.MergedBy, h.MergedAt, h.Reason, h.ItemsMerged)

	query, args := ib.Build()
	if _, err := database.From(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_lead_id":   h.PrimaryLeadID,
			"secondary_lead_id": h.SecondaryLeadID,
		}).Error("Failed to insert merge history")
		return apperrors.NewMergeFailedf("failed to record merge history")
	}
	return nil
}

// ListByLead returns merges where the lead was the surviving primary, newest
// first.
func (r *Repository) ListByLead(ctx context.Context, leadID int64) ([]models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.ListByLead")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(historyColumns...)
	sb.From("lead_merge_history")
	sb.Where(sb.Equal("primary_lead_id", leadID))
	sb.OrderBy("merged_at DESC", "id DESC")

	query, args := sb.Build()
	var history []models.MergeHistory
	if err := database.From(ctx, r.db).SelectContext(ctx, &history, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": leadID}).Error("Failed to list merge history")
		return nil, apperrors.NewMergeFailedf("failed to list merge history for lead %d", leadID)
	}
	return history, nil
}
