package merge

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/dealdesk/bramble/internal/platform/appcontext"
	"github.com/dealdesk/bramble/internal/platform/database"
	"github.com/dealdesk/bramble/internal/platform/tracing"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
	"github.com/dealdesk/bramble/pkg/models"
	"github.com/dealdesk/bramble/pkg/scoring"
)

// DependentStore moves a lead's dependent records. Every call joins the
// transaction carried by ctx.
type DependentStore interface {
	RepointContacts(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointNotes(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointTasks(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointPhotos(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointVisits(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointFamilyMembers(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointAgents(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
	RepointTags(ctx context.Context, fromLeadID, toLeadID int64) (int64, error)
}

// HistoryStore records merge audit rows.
type HistoryStore interface {
	Insert(ctx context.Context, h *models.MergeHistory) error
}

// TxBeginner begins or joins a context-carried transaction.
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Notifier announces committed merges. Best-effort.
type Notifier interface {
	LeadMerged(ctx context.Context, result *models.MergeResult) error
}

// Executor performs merges. All dependent moves, the secondary delete and the
// counter recompute commit atomically; the audit row and the kafka event
// happen after commit and never undo a merge.
type Executor struct {
	db         TxBeginner
	leads      LeadStore
	dependents DependentStore
	history    HistoryStore
	scorer     *scoring.Scorer
	notifier   Notifier
	logger     ectologger.Logger
}

func NewExecutor(db TxBeginner, leads LeadStore, dependents DependentStore, history HistoryStore, scorer *scoring.Scorer, notifier Notifier, logger ectologger.Logger) *Executor {
	return &Executor{
		db:         db,
		leads:      leads,
		dependents: dependents,
		history:    history,
		scorer:     scorer,
		notifier:   notifier,
		logger:     logger,
	}
}

// Merge folds the secondary lead into the primary and deletes it.
func (e *Executor) Merge(ctx context.Context, req models.MergeRequest) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Executor.Merge")
	defer span.End()

	if req.PrimaryID == req.SecondaryID {
		return nil, apperrors.NewInvalidPairf("cannot merge lead %d into itself", req.PrimaryID)
	}

	primarySnap, err := e.leads.GetSnapshot(ctx, req.PrimaryID)
	if err != nil {
		return nil, err
	}
	secondarySnap, err := e.leads.GetSnapshot(ctx, req.SecondaryID)
	if err != nil {
		return nil, err
	}

	suggestion := e.scorer.Score(*primarySnap, *secondarySnap)
	if suggestion.Confidence == models.ConfidenceVeryLow && !req.Override {
		return nil, apperrors.NewLowConfidenceRejectedf(
			"pair scored %.0f (%s); pass override to merge anyway",
			suggestion.OverallScore, suggestion.Confidence)
	}

	txCtx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apperrors.NewMergeFailedf("failed to begin merge transaction")
	}

	result, audit, err := e.mergeInTx(txCtx, req)
	if err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			e.logger.WithContext(ctx).WithError(rbErr).Error("Failed to rollback merge transaction")
		}
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, apperrors.NewMergeFailedf("failed to commit merge of lead %d into %d", req.SecondaryID, req.PrimaryID)
	}

	// The merge is durable from here. Audit and notification failures are
	// logged, not surfaced.
	result.AuditRecorded = e.recordHistory(ctx, audit)
	e.notify(ctx, result)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":   result.PrimaryID,
		"secondary_id": result.SecondaryID,
		"items_merged": result.ItemsMerged.Total(),
	}).Info("Merged leads")

	return result, nil
}

// mergeInTx runs the destructive steps. Both rows stay locked until commit.
func (e *Executor) mergeInTx(ctx context.Context, req models.MergeRequest) (*models.MergeResult, *models.MergeHistory, error) {
	primary, secondary, err := e.leads.LockPair(ctx, req.PrimaryID, req.SecondaryID)
	if err != nil {
		return nil, nil, err
	}

	// Re-read counts under lock: phones and emails follow their contacts, so
	// their numbers come from the snapshot rather than rows-affected.
	lockedSecondary, err := e.leads.GetSnapshot(ctx, req.SecondaryID)
	if err != nil {
		return nil, nil, err
	}

	var moved models.RelatedCounts
	moved.Phones = lockedSecondary.Counts.Phones
	moved.Emails = lockedSecondary.Counts.Emails

	steps := []struct {
		dest *int
		move func(ctx context.Context, from, to int64) (int64, error)
	}{
		{&moved.Contacts, e.dependents.RepointContacts},
		{&moved.Notes, e.dependents.RepointNotes},
		{&moved.Tasks, e.dependents.RepointTasks},
		{&moved.Photos, e.dependents.RepointPhotos},
		{&moved.Visits, e.dependents.RepointVisits},
		{&moved.FamilyMembers, e.dependents.RepointFamilyMembers},
		{&moved.Agents, e.dependents.RepointAgents},
		{&moved.Tags, e.dependents.RepointTags},
	}
	for _, step := range steps {
		n, err := step.move(ctx, req.SecondaryID, req.PrimaryID)
		if err != nil {
			return nil, nil, err
		}
		*step.dest = int(n)
	}

	if err := e.leads.Delete(ctx, req.SecondaryID); err != nil {
		return nil, nil, err
	}
	if err := e.leads.RecountDisplayCounters(ctx, req.PrimaryID); err != nil {
		return nil, nil, err
	}
	if err := e.leads.TouchActivity(ctx, req.PrimaryID); err != nil {
		return nil, nil, err
	}

	mergedAt := time.Now().UTC()
	result := &models.MergeResult{
		PrimaryID:   req.PrimaryID,
		SecondaryID: req.SecondaryID,
		ItemsMerged: moved,
		MergedAt:    mergedAt,
	}

	itemsJSON, _ := json.Marshal(moved)
	audit := &models.MergeHistory{
		PrimaryLeadID:    req.PrimaryID,
		SecondaryLeadID:  req.SecondaryID,
		PrimaryAddress:   primary.FullAddress(),
		SecondaryAddress: secondary.FullAddress(),
		MergedBy:         appcontext.GetUserID(ctx),
		MergedAt:         mergedAt,
		Reason:           req.Reason,
		ItemsMerged:      itemsJSON,
	}

	return result, audit, nil
}

func (e *Executor) recordHistory(ctx context.Context, audit *models.MergeHistory) bool {
	if err := e.history.Insert(ctx, audit); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_id":   audit.PrimaryLeadID,
			"secondary_id": audit.SecondaryLeadID,
		}).Error("Merge committed but audit row failed")
		return false
	}
	return true
}

func (e *Executor) notify(ctx context.Context, result *models.MergeResult) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.LeadMerged(ctx, result); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Merge committed but event emission failed")
	}
}
