// Package dependent moves a lead's dependent records during a merge. Every
// method is expected to run inside the merge transaction carried by ctx.
package dependent

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/dealdesk/bramble/internal/platform/database"
	"github.com/dealdesk/bramble/internal/platform/tracing"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
)

// Repository re-points dependent records from one lead to another.
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

// RepointContacts moves contacts to the new lead. Phones and emails reference
// the contact row, so they follow automatically.
func (r *Repository) RepointContacts(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "contacts", fromLeadID, toLeadID)
}

func (r *Repository) RepointNotes(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "notes", fromLeadID, toLeadID)
}

func (r *Repository) RepointTasks(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "tasks", fromLeadID, toLeadID)
}

func (r *Repository) RepointPhotos(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "photos", fromLeadID, toLeadID)
}

func (r *Repository) RepointVisits(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "visits", fromLeadID, toLeadID)
}

func (r *Repository) RepointFamilyMembers(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repoint(ctx, "family_members", fromLeadID, toLeadID)
}

func (r *Repository) repoint(ctx context.Context, table string, fromLeadID, toLeadID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependent.Repository.repoint."+table)
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("lead_id", toLeadID))
	ub.Where(ub.Equal("lead_id", fromLeadID))

	query, args := ub.Build()
	result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":        table,
			"from_lead_id": fromLeadID,
			"to_lead_id":   toLeadID,
		}).Error("Failed to repoint dependent records")
		return 0, apperrors.NewMergeFailedf("failed to move %s from lead %d to lead %d", table, fromLeadID, toLeadID)
	}

	moved, _ := result.RowsAffected()
	return moved, nil
}

// RepointAgents moves agent assignments, dropping any that would duplicate an
// assignment the target lead already has.
func (r *Repository) RepointAgents(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repointKeyed(ctx, "lead_agents", "agent_id", fromLeadID, toLeadID)
}

// RepointTags moves tags, dropping duplicates keyed on the tag label.
func (r *Repository) RepointTags(ctx context.Context, fromLeadID, toLeadID int64) (int64, error) {
	return r.repointKeyed(ctx, "lead_tags", "tag", fromLeadID, toLeadID)
}

// repointKeyed re-points rows that carry a uniqueness key on (lead_id, key).
// Rows whose key already exists on the target are deleted rather than moved,
// so the merge never doubles an association.
func (r *Repository) repointKeyed(ctx context.Context, table, keyColumn string, fromLeadID, toLeadID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependent.Repository.repointKeyed."+table)
	defer span.End()

	deleteDupes := `
		DELETE FROM ` + table + `
		WHERE lead_id = $1
		  AND ` + keyColumn + ` IN (SELECT ` + keyColumn + ` FROM ` + table + ` WHERE lead_id = $2)
	`
	if _, err := database.From(ctx, r.db).ExecContext(ctx, deleteDupes, fromLeadID, toLeadID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":        table,
			"from_lead_id": fromLeadID,
			"to_lead_id":   toLeadID,
		}).Error("Failed to drop duplicate associations")
		return 0, apperrors.NewMergeFailedf("failed to dedupe %s for lead %d", table, toLeadID)
	}

	return r.repoint(ctx, table, fromLeadID, toLeadID)
}
