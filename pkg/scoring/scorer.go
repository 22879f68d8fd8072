// Package scoring rates lead pairs for merge likelihood. Scoring is pure and
// deterministic: identical snapshots always produce identical suggestions,
// reasoning order included.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/dealdesk/bramble/pkg/models"
	"github.com/dealdesk/bramble/pkg/normalize"
)

// Overall score weights. Risk subtracts.
const (
	weightAddress      = 0.40
	weightOwner        = 0.25
	weightGPS          = 0.10
	weightCompleteness = 0.10
	weightQuality      = 0.05
	weightRisk         = 0.10
)

// gpsNeutral is the proximity score when either side has no coordinates:
// absence of GPS data neither supports nor refutes a match.
const gpsNeutral = 50

// Config holds the tunable scoring knobs.
type Config struct {
	ZipMismatchCap       float64 // cap on address similarity when non-empty zips differ
	GPSMatchRadiusMeters float64 // distance at or under which proximity is 100
	GPSZeroRadiusMeters  float64 // distance at or over which proximity is 0
	HighCutoff           float64
	MediumCutoff         float64
	LowCutoff            float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ZipMismatchCap:       40,
		GPSMatchRadiusMeters: 50,
		GPSZeroRadiusMeters:  300,
		HighCutoff:           90,
		MediumCutoff:         70,
		LowCutoff:            50,
	}
}

// Scorer rates lead pairs. Now is injectable so recency terms are testable.
type Scorer struct {
	cfg Config
	Now func() time.Time
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{
		cfg: cfg,
		Now: time.Now,
	}
}

// Score produces a merge suggestion for the pair. The suggested primary is the
// lead with the better data profile; ties go to the lower id.
func (s *Scorer) Score(a, b models.LeadSnapshot) models.MergeSuggestion {
	addrSim := s.AddressSimilarity(&a.Lead, &b.Lead)
	ownerSim := s.OwnerSimilarity(&a.Lead, &b.Lead)
	gps := s.GPSProximity(&a.Lead, &b.Lead)

	primary, secondary := a, b
	psA, psB := s.primaryScore(a), s.primaryScore(b)
	if psB > psA || (psB == psA && b.ID < a.ID) {
		primary, secondary = b, a
	}

	completeness := s.Completeness(primary)
	quality := s.Quality(primary.Lead)
	risk := s.Risk(a, b, addrSim, ownerSim)

	overall := weightAddress*addrSim +
		weightOwner*ownerSim +
		weightGPS*gps +
		weightCompleteness*completeness +
		weightQuality*quality -
		weightRisk*risk
	overall = clamp(overall, 0, 100)

	return models.MergeSuggestion{
		LeadAID:              a.ID,
		LeadBID:              b.ID,
		SuggestedPrimaryID:   primary.ID,
		SuggestedSecondaryID: secondary.ID,
		Scores: models.ScoreBreakdown{
			AddressSimilarity:   addrSim,
			OwnerNameSimilarity: ownerSim,
			GPSProximity:        gps,
			DataCompleteness:    completeness,
			LeadQuality:         quality,
			Risk:                risk,
		},
		OverallScore:    overall,
		Confidence:      s.Confidence(overall),
		Reasoning:       s.reasoning(primary, secondary, addrSim, ownerSim, risk),
		TransferSummary: secondary.Counts,
	}
}

// AddressSimilarity compares normalized street addresses. Differing non-empty
// zips cap the result: the same street name in two towns is not the same house.
func (s *Scorer) AddressSimilarity(a, b *models.Lead) float64 {
	addrA := normalize.Address(joinAddressLines(a))
	addrB := normalize.Address(joinAddressLines(b))

	sim := StringSimilarity(addrA, addrB)

	zipA := normalize.ZipCode(a.Zipcode)
	zipB := normalize.ZipCode(b.Zipcode)
	if zipA != "" && zipB != "" && normalize.Zip5(zipA) != normalize.Zip5(zipB) {
		sim = math.Min(sim, s.cfg.ZipMismatchCap)
	}

	return sim
}

// OwnerSimilarity takes the best pairwise similarity across the two owner-name
// sets, so "John Smith" on one lead still matches "Jane & John Smith" split
// across owner1/owner2 on the other. Either side having no owners scores 0.
func (s *Scorer) OwnerSimilarity(a, b *models.Lead) float64 {
	ownersA := ownerSet(a)
	ownersB := ownerSet(b)
	if len(ownersA) == 0 || len(ownersB) == 0 {
		return 0
	}

	best := 0.0
	for _, oa := range ownersA {
		for _, ob := range ownersB {
			if sim := StringSimilarity(oa, ob); sim > best {
				best = sim
			}
		}
	}
	return best
}

// GPSProximity maps haversine distance onto 0-100: full score at or under the
// match radius, zero at or past the zero radius, linear in between. Missing
// coordinates on either side score neutral.
func (s *Scorer) GPSProximity(a, b *models.Lead) float64 {
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return gpsNeutral
	}

	d := HaversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
	if d <= s.cfg.GPSMatchRadiusMeters {
		return 100
	}
	if d >= s.cfg.GPSZeroRadiusMeters {
		return 0
	}
	return 100 * (s.cfg.GPSZeroRadiusMeters - d) / (s.cfg.GPSZeroRadiusMeters - s.cfg.GPSMatchRadiusMeters)
}

// Completeness scores a lead's data profile: 40 points for basic fields,
// 60 for related-data presence.
func (s *Scorer) Completeness(snap models.LeadSnapshot) float64 {
	var score float64

	if snap.AddressLine1 != "" {
		score += 5
	}
	if snap.City != "" {
		score += 5
	}
	if snap.State != "" {
		score += 5
	}
	if normalize.ZipCode(snap.Zipcode) != "" {
		score += 5
	}
	if snap.Owner1Name != nil && *snap.Owner1Name != "" {
		score += 10
	}
	if snap.HasCoordinates() {
		score += 10
	}

	c := snap.Counts
	score += float64(min(c.Contacts, 3)) * 5
	score += float64(min(c.Notes, 3)) * 5
	score += float64(min(c.Tasks, 2)) * 5
	score += float64(min(c.Photos, 2)) * 5
	score += float64(min(c.Visits, 2)) * 5

	return clamp(score, 0, 100)
}

// Quality scores a lead's pipeline standing: base 50 with temperature,
// desk-status and recency adjustments.
func (s *Scorer) Quality(lead models.Lead) float64 {
	score := 50.0

	switch lead.LeadTemperature {
	case models.TemperatureSuperHot:
		score += 25
	case models.TemperatureHot:
		score += 20
	case models.TemperatureWarm:
		score += 10
	case models.TemperatureDead:
		score -= 20
	}

	switch lead.DeskStatus {
	case models.DeskStatusActive:
		score += 10
	case models.DeskStatusArchived:
		score -= 10
	}

	if lead.LastActivityAt != nil {
		age := s.Now().Sub(*lead.LastActivityAt)
		switch {
		case age <= 30*24*time.Hour:
			score += 15
		case age <= 90*24*time.Hour:
			score += 10
		case age <= 180*24*time.Hour:
			score += 5
		}
	}

	return clamp(score, 0, 100)
}

// Risk accumulates penalty points for signals that the pair is NOT the same
// property or that merging would destroy real work.
func (s *Scorer) Risk(a, b models.LeadSnapshot, addrSim, ownerSim float64) float64 {
	var risk float64

	if addrSim < 50 {
		risk += 30
	}
	if ownerSim < 30 && len(ownerSet(&a.Lead)) > 0 && len(ownerSet(&b.Lead)) > 0 {
		risk += 25
	}
	if a.Counts.Total() >= 10 && b.Counts.Total() >= 10 {
		risk += 15
	}
	if a.AssignedAgentID != nil && b.AssignedAgentID != nil && *a.AssignedAgentID != *b.AssignedAgentID {
		risk += 15
	}
	if s.recentlyActive(a.Lead) && s.recentlyActive(b.Lead) {
		risk += 10
	}
	if a.DeskStatus != b.DeskStatus {
		risk += 10
	}

	return clamp(risk, 0, 100)
}

// Confidence buckets an overall score onto the configured ladder.
func (s *Scorer) Confidence(overall float64) models.ConfidenceLevel {
	switch {
	case overall >= s.cfg.HighCutoff:
		return models.ConfidenceHigh
	case overall >= s.cfg.MediumCutoff:
		return models.ConfidenceMedium
	case overall >= s.cfg.LowCutoff:
		return models.ConfidenceLow
	default:
		return models.ConfidenceVeryLow
	}
}

// primaryScore ranks a lead for primary selection: completeness weighted over
// quality. Exact ties fall to the lower id in Score.
func (s *Scorer) primaryScore(snap models.LeadSnapshot) float64 {
	return 0.6*s.Completeness(snap) + 0.4*s.Quality(snap.Lead)
}

func (s *Scorer) recentlyActive(lead models.Lead) bool {
	return lead.LastActivityAt != nil && s.Now().Sub(*lead.LastActivityAt) <= 30*24*time.Hour
}

// reasoning emits explanation lines in a fixed order: address, owner,
// completeness, risk, transfer summary.
func (s *Scorer) reasoning(primary, secondary models.LeadSnapshot, addrSim, ownerSim, risk float64) []string {
	reasons := make([]string, 0, 5)

	reasons = append(reasons, fmt.Sprintf("address similarity %.0f%%", addrSim))

	if len(ownerSet(&primary.Lead)) == 0 || len(ownerSet(&secondary.Lead)) == 0 {
		reasons = append(reasons, "owner name missing on at least one lead")
	} else {
		reasons = append(reasons, fmt.Sprintf("owner name similarity %.0f%%", ownerSim))
	}

	reasons = append(reasons, fmt.Sprintf("lead %d has the stronger data profile (%.0f vs %.0f)",
		primary.ID, s.primaryScore(primary), s.primaryScore(secondary)))

	if risk > 0 {
		reasons = append(reasons, fmt.Sprintf("risk factors present (%.0f penalty points)", risk))
	} else {
		reasons = append(reasons, "no significant risk factors")
	}

	reasons = append(reasons, fmt.Sprintf("merging would transfer %d related records to lead %d",
		secondary.Counts.Total(), primary.ID))

	return reasons
}

func joinAddressLines(lead *models.Lead) string {
	addr := lead.AddressLine1
	if lead.AddressLine2 != nil && *lead.AddressLine2 != "" {
		addr += " " + *lead.AddressLine2
	}
	return addr
}

func ownerSet(lead *models.Lead) []string {
	var owners []string
	if lead.Owner1Name != nil {
		if o := normalize.OwnerName(*lead.Owner1Name); o != "" {
			owners = append(owners, o)
		}
	}
	if lead.Owner2Name != nil {
		if o := normalize.OwnerName(*lead.Owner2Name); o != "" {
			owners = append(owners, o)
		}
	}
	return owners
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
