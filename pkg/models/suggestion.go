package models

// ConfidenceLevel buckets an overall similarity score for presentation.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "HIGH"
	ConfidenceMedium  ConfidenceLevel = "MEDIUM"
	ConfidenceLow     ConfidenceLevel = "LOW"
	ConfidenceVeryLow ConfidenceLevel = "VERY_LOW"
)

// ScoreBreakdown holds the sub-scores behind a suggestion, each 0-100.
type ScoreBreakdown struct {
	AddressSimilarity   float64 `json:"address_similarity"`
	OwnerNameSimilarity float64 `json:"owner_name_similarity"`
	GPSProximity        float64 `json:"gps_proximity"`
	DataCompleteness    float64 `json:"data_completeness"`
	LeadQuality         float64 `json:"lead_quality"`
	Risk                float64 `json:"risk"`
}

// MergeSuggestion is the scorer's verdict on a lead pair. Identical inputs
// always produce an identical suggestion, reasoning order included.
type MergeSuggestion struct {
	LeadAID              int64           `json:"lead_a_id"`
	LeadBID              int64           `json:"lead_b_id"`
	SuggestedPrimaryID   int64           `json:"suggested_primary_id"`
	SuggestedSecondaryID int64           `json:"suggested_secondary_id"`
	Scores               ScoreBreakdown  `json:"scores"`
	OverallScore         float64         `json:"overall_score"`
	Confidence           ConfidenceLevel `json:"confidence"`
	Reasoning            []string        `json:"reasoning"`
	TransferSummary      RelatedCounts   `json:"transfer_summary"`
}
