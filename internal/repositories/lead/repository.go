// Package lead persists property leads and their scoring snapshots.
package lead

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/dealdesk/bramble/internal/platform/database"
	"github.com/dealdesk/bramble/internal/platform/tracing"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
	"github.com/dealdesk/bramble/pkg/models"
)

// lockNotAvailable is the Postgres error code raised by FOR UPDATE NOWAIT
// when another transaction holds the row.
const lockNotAvailable = "55P03"

var leadColumns = []string{
	"id", "address_line1", "address_line2", "city", "state", "zipcode",
	"latitude", "longitude", "owner1_name", "owner2_name",
	"lead_temperature", "desk_status", "assigned_agent_id",
	"contact_count", "note_count", "task_count", "photo_count", "agent_count",
	"last_activity_at", "created_at", "updated_at",
}

// snapshotQuery loads a lead together with its related-data counts in one
// round trip. Phones and emails are counted through their parent contacts.
const snapshotQuery = `
	SELECT l.id, l.address_line1, l.address_line2, l.city, l.state, l.zipcode,
	       l.latitude, l.longitude, l.owner1_name, l.owner2_name,
	       l.lead_temperature, l.desk_status, l.assigned_agent_id,
	       l.contact_count, l.note_count, l.task_count, l.photo_count, l.agent_count,
	       l.last_activity_at, l.created_at, l.updated_at,
	       (SELECT COUNT(*) FROM contacts c WHERE c.lead_id = l.id) AS contact_total,
	       (SELECT COUNT(*) FROM contact_phones p JOIN contacts c ON c.id = p.contact_id WHERE c.lead_id = l.id) AS phone_total,
	       (SELECT COUNT(*) FROM contact_emails e JOIN contacts c ON c.id = e.contact_id WHERE c.lead_id = l.id) AS email_total,
	       (SELECT COUNT(*) FROM notes n WHERE n.lead_id = l.id) AS note_total,
	       (SELECT COUNT(*) FROM tasks t WHERE t.lead_id = l.id) AS task_total,
	       (SELECT COUNT(*) FROM photos ph WHERE ph.lead_id = l.id) AS photo_total,
	       (SELECT COUNT(*) FROM visits v WHERE v.lead_id = l.id) AS visit_total,
	       (SELECT COUNT(*) FROM lead_agents la WHERE la.lead_id = l.id) AS agent_total,
	       (SELECT COUNT(*) FROM family_members f WHERE f.lead_id = l.id) AS family_total,
	       (SELECT COUNT(*) FROM lead_tags lt WHERE lt.lead_id = l.id) AS tag_total
	FROM leads l
`

type snapshotRow struct {
	models.Lead
	ContactTotal int `db:"contact_total"`
	PhoneTotal   int `db:"phone_total"`
	EmailTotal   int `db:"email_total"`
	NoteTotal    int `db:"note_total"`
	TaskTotal    int `db:"task_total"`
	PhotoTotal   int `db:"photo_total"`
	VisitTotal   int `db:"visit_total"`
	AgentTotal   int `db:"agent_total"`
	FamilyTotal  int `db:"family_total"`
	TagTotal     int `db:"tag_total"`
}

func (row snapshotRow) toSnapshot() models.LeadSnapshot {
	return models.LeadSnapshot{
		Lead: row.Lead,
		Counts: models.RelatedCounts{
			Contacts:      row.ContactTotal,
			Phones:        row.PhoneTotal,
			Emails:        row.EmailTotal,
			Notes:         row.NoteTotal,
			Tasks:         row.TaskTotal,
			Photos:        row.PhotoTotal,
			Visits:        row.VisitTotal,
			Agents:        row.AgentTotal,
			FamilyMembers: row.FamilyTotal,
			Tags:          row.TagTotal,
		},
	}
}

// Repository handles lead persistence
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

// Get retrieves a lead by id.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(leadColumns...)
	sb.From("leads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var lead models.Lead
	if err := database.From(ctx, r.db).GetContext(ctx, &lead, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundf("lead %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to get lead")
		return nil, apperrors.NewMergeFailedf("failed to get lead %d", id)
	}
	return &lead, nil
}

// GetSnapshot retrieves a lead with its related-data counts.
func (r *Repository) GetSnapshot(ctx context.Context, id int64) (*models.LeadSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetSnapshot")
	defer span.End()

	query := snapshotQuery + " WHERE l.id = $1"
	var row snapshotRow
	if err := database.From(ctx, r.db).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundf("lead %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to get lead snapshot")
		return nil, apperrors.NewMergeFailedf("failed to get lead snapshot for %d", id)
	}

	snap := row.toSnapshot()
	return &snap, nil
}

// ListActiveSnapshots returns every non-archived lead with counts, ordered by
// id ascending. Duplicate detection iterates this set.
func (r *Repository) ListActiveSnapshots(ctx context.Context) ([]models.LeadSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.ListActiveSnapshots")
	defer span.End()

	query := snapshotQuery + " WHERE l.desk_status <> $1 ORDER BY l.id ASC"
	var rows []snapshotRow
	if err := database.From(ctx, r.db).SelectContext(ctx, &rows, query, models.DeskStatusArchived); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active lead snapshots")
		return nil, apperrors.NewMergeFailedf("failed to list active leads")
	}

	snapshots := make([]models.LeadSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = row.toSnapshot()
	}
	return snapshots, nil
}

// LockPair locks both lead rows for the duration of the surrounding
// transaction. Rows are locked in ascending id order so concurrent merges of
// the same pair cannot deadlock; a held lock surfaces as ConcurrentModification.
func (r *Repository) LockPair(ctx context.Context, primaryID, secondaryID int64) (*models.Lead, *models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.LockPair")
	defer span.End()

	first, second := primaryID, secondaryID
	if second < first {
		first, second = second, first
	}

	locked := make(map[int64]*models.Lead, 2)
	for _, id := range []int64{first, second} {
		lead, err := r.lockOne(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = lead
	}

	return locked[primaryID], locked[secondaryID], nil
}

func (r *Repository) lockOne(ctx context.Context, id int64) (*models.Lead, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(leadColumns...)
	sb.From("leads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	query += " FOR UPDATE NOWAIT"

	var lead models.Lead
	if err := database.From(ctx, r.db).GetContext(ctx, &lead, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundf("lead %d not found", id)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable {
			return nil, apperrors.NewConcurrentModificationf("lead %d is locked by another operation", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to lock lead")
		return nil, apperrors.NewMergeFailedf("failed to lock lead %d", id)
	}
	return &lead, nil
}

// Delete removes a lead row. Dependents must already be re-pointed.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("leads")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := database.From(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to delete lead")
		return apperrors.NewMergeFailedf("failed to delete lead %d", id)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundf("lead %d not found", id)
	}
	return nil
}

// RecountDisplayCounters recomputes the denormalized counters on a lead from
// the dependent tables. Called inside the merge transaction after re-pointing.
func (r *Repository) RecountDisplayCounters(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.RecountDisplayCounters")
	defer span.End()

	query := `
		UPDATE leads SET
			contact_count = (SELECT COUNT(*) FROM contacts c WHERE c.lead_id = leads.id),
			note_count = (SELECT COUNT(*) FROM notes n WHERE n.lead_id = leads.id),
			task_count = (SELECT COUNT(*) FROM tasks t WHERE t.lead_id = leads.id),
			photo_count = (SELECT COUNT(*) FROM photos ph WHERE ph.lead_id = leads.id),
			agent_count = (SELECT COUNT(*) FROM lead_agents la WHERE la.lead_id = leads.id),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := database.From(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to recount lead counters")
		return apperrors.NewMergeFailedf("failed to recount counters for lead %d", id)
	}
	return nil
}

// TouchActivity stamps last_activity_at, recording that a merge touched the
// primary lead.
func (r *Repository) TouchActivity(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.TouchActivity")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("leads")
	ub.Set(
		ub.Assign("last_activity_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.From(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"lead_id": id}).Error("Failed to touch lead activity")
		return apperrors.NewMergeFailedf("failed to update lead %d activity", id)
	}
	return nil
}
