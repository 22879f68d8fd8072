// Package events notifies downstream caches that lead data changed. Emission
// is best-effort and never participates in the merge transaction.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/dealdesk/bramble/pkg/kafka"
	"github.com/dealdesk/bramble/pkg/models"
)

const (
	EventLeadMerged           = "lead.merged"
	EventDuplicatesRecomputed = "lead.duplicates.recomputed"
)

// LeadEventPublisher is satisfied by the kafka producer.
type LeadEventPublisher interface {
	PublishLeadEvent(ctx context.Context, event *kafka.LeadEvent) error
}

// Emitter publishes lead lifecycle events.
type Emitter struct {
	publisher LeadEventPublisher
	logger    ectologger.Logger
}

func NewEmitter(publisher LeadEventPublisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// LeadMerged announces a committed merge so cached views drop both leads.
func (e *Emitter) LeadMerged(ctx context.Context, result *models.MergeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return e.publisher.PublishLeadEvent(ctx, &kafka.LeadEvent{
		EventType: EventLeadMerged,
		LeadID:    result.PrimaryID,
		Data:      data,
	})
}

// DuplicatesRecomputed announces a fresh detection run.
func (e *Emitter) DuplicatesRecomputed(ctx context.Context, groupCount int, threshold float64) error {
	data, err := json.Marshal(map[string]any{
		"group_count": groupCount,
		"threshold":   threshold,
	})
	if err != nil {
		return err
	}

	return e.publisher.PublishLeadEvent(ctx, &kafka.LeadEvent{
		EventType: EventDuplicatesRecomputed,
		Data:      data,
	})
}
