package models

// MatchType classifies how a duplicate was detected.
type MatchType string

const (
	MatchTypeExact MatchType = "exact" // normalized full addresses equal, zip included
	MatchTypeGPS   MatchType = "gps"   // coordinates within the tight radius
	MatchTypeFuzzy MatchType = "fuzzy" // address similarity cleared the threshold
)

// DuplicateMatch is one suspected duplicate of a group's primary. Score is
// the address similarity against the primary, 0-100.
type DuplicateMatch struct {
	LeadID    int64     `json:"lead_id"`
	Address   string    `json:"address"`
	MatchType MatchType `json:"match_type"`
	Score     float64   `json:"score"`
}

// DuplicateGroup clusters leads that look like the same property. Groups are
// disjoint: a lead appears in at most one group across a detection run.
type DuplicateGroup struct {
	PrimaryLeadID   int64            `json:"primary_lead_id"`
	PrimaryAddress  string           `json:"primary_address"`
	Duplicates      []DuplicateMatch `json:"duplicates"`
	TotalDuplicates int              `json:"total_duplicates"`
}
