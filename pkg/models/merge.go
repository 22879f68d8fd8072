package models

import (
	"encoding/json"
	"time"
)

// MergeRequest asks the engine to fold the secondary lead into the primary.
type MergeRequest struct {
	PrimaryID   int64   `json:"primary_id" validate:"required,gt=0"`
	SecondaryID int64   `json:"secondary_id" validate:"required,gt=0"`
	Reason      *string `json:"reason,omitempty"`
	// Override lets an operator force a merge the scorer rated VERY_LOW.
	Override bool `json:"override,omitempty"`
}

// MergePlan previews what a merge would transfer. Read-only.
type MergePlan struct {
	PrimaryID        int64         `json:"primary_id"`
	SecondaryID      int64         `json:"secondary_id"`
	PrimaryAddress   string        `json:"primary_address"`
	SecondaryAddress string        `json:"secondary_address"`
	Transfers        RelatedCounts `json:"transfers"`
}

// MergeResult reports a committed merge.
type MergeResult struct {
	PrimaryID     int64         `json:"primary_id"`
	SecondaryID   int64         `json:"secondary_id"`
	ItemsMerged   RelatedCounts `json:"items_merged"`
	MergedAt      time.Time     `json:"merged_at"`
	AuditRecorded bool          `json:"audit_recorded"`
}

// MergeHistory is an audit row for a completed merge. The secondary lead no
// longer exists, so its address is snapshotted here.
// Field order matches schema: id, primary_lead_id, secondary_lead_id, ...
type MergeHistory struct {
	ID               int64           `json:"id" db:"id"`
	PrimaryLeadID    int64           `json:"primary_lead_id" db:"primary_lead_id"`
	SecondaryLeadID  int64           `json:"secondary_lead_id" db:"secondary_lead_id"`
	PrimaryAddress   string          `json:"primary_address" db:"primary_address"`
	SecondaryAddress string          `json:"secondary_address" db:"secondary_address"`
	MergedBy         string          `json:"merged_by" db:"merged_by"`
	MergedAt         time.Time       `json:"merged_at" db:"merged_at"`
	Reason           *string         `json:"reason,omitempty" db:"reason"`
	ItemsMerged      json.RawMessage `json:"items_merged" db:"items_merged"`
}
