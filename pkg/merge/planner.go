// Package merge plans and executes lead merges.
package merge

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/dealdesk/bramble/internal/platform/tracing"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
	"github.com/dealdesk/bramble/pkg/models"
)

// LeadStore is the slice of the lead repository the engine needs.
type LeadStore interface {
	GetSnapshot(ctx context.Context, id int64) (*models.LeadSnapshot, error)
	LockPair(ctx context.Context, primaryID, secondaryID int64) (*models.Lead, *models.Lead, error)
	Delete(ctx context.Context, id int64) error
	RecountDisplayCounters(ctx context.Context, id int64) error
	TouchActivity(ctx context.Context, id int64) error
}

// Planner previews a merge without touching anything.
type Planner struct {
	leads  LeadStore
	logger ectologger.Logger
}

func NewPlanner(leads LeadStore, logger ectologger.Logger) *Planner {
	return &Planner{
		leads:  leads,
		logger: logger,
	}
}

// Plan reports what merging secondary into primary would transfer. Read-only;
// the counts can drift before an actual merge runs, which re-reads them under
// lock.
func (p *Planner) Plan(ctx context.Context, primaryID, secondaryID int64) (*models.MergePlan, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Planner.Plan")
	defer span.End()

	if primaryID == secondaryID {
		return nil, apperrors.NewInvalidPairf("cannot merge lead %d into itself", primaryID)
	}

	primary, err := p.leads.GetSnapshot(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := p.leads.GetSnapshot(ctx, secondaryID)
	if err != nil {
		return nil, err
	}

	return &models.MergePlan{
		PrimaryID:        primaryID,
		SecondaryID:      secondaryID,
		PrimaryAddress:   primary.FullAddress(),
		SecondaryAddress: secondary.FullAddress(),
		Transfers:        secondary.Counts,
	}, nil
}
