package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/bramble/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	s := NewScorer(DefaultConfig())
	s.Now = func() time.Time { return testNow }
	return s
}

func strPtr(s string) *string       { return &s }
func f64Ptr(f float64) *float64     { return &f }
func i64Ptr(i int64) *int64         { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func makeLead(id int64, addr, city, state, zip string) models.Lead {
	return models.Lead{
		ID:              id,
		AddressLine1:    addr,
		City:            city,
		State:           state,
		Zipcode:         zip,
		LeadTemperature: models.TemperatureWarm,
		DeskStatus:      models.DeskStatusActive,
	}
}

func TestStringSimilarity(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.Equal(t, 100.0, StringSimilarity("123 main street", "123 main street"))
	})

	t.Run("empty sides score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, StringSimilarity("", "123 main street"))
		assert.Equal(t, 0.0, StringSimilarity("123 main street", ""))
		assert.Equal(t, 0.0, StringSimilarity("", ""))
	})

	t.Run("close strings score high", func(t *testing.T) {
		sim := StringSimilarity("123 main street", "123 main streat")
		assert.Greater(t, sim, 90.0)
		assert.Less(t, sim, 100.0)
	})

	t.Run("unrelated strings score low", func(t *testing.T) {
		assert.Less(t, StringSimilarity("123 main street", "99 elm avenue"), 40.0)
	})
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("abc", "abc"))
	assert.Equal(t, 3, LevenshteinDistance("", "abc"))
	assert.Equal(t, 1, LevenshteinDistance("kitten", "mitten"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
}

func TestHaversineMeters(t *testing.T) {
	t.Run("zero distance", func(t *testing.T) {
		assert.InDelta(t, 0, HaversineMeters(39.7817, -89.6501, 39.7817, -89.6501), 0.001)
	})

	t.Run("known distance", func(t *testing.T) {
		// ~0.001 degrees latitude is about 111 meters
		d := HaversineMeters(39.7817, -89.6501, 39.7827, -89.6501)
		assert.InDelta(t, 111, d, 2)
	})
}

func TestAddressSimilarity(t *testing.T) {
	s := newTestScorer()

	t.Run("equivalent abbreviated forms", func(t *testing.T) {
		a := makeLead(1, "123 N Main St", "Springfield", "IL", "62701")
		b := makeLead(2, "123 North Main Street", "Springfield", "IL", "62701")
		assert.Equal(t, 100.0, s.AddressSimilarity(&a, &b))
	})

	t.Run("both addresses empty is not a match", func(t *testing.T) {
		a := makeLead(1, "", "Springfield", "IL", "62701")
		b := makeLead(2, "", "Springfield", "IL", "62701")
		assert.Equal(t, 0.0, s.AddressSimilarity(&a, &b))
	})

	t.Run("zip mismatch caps similar streets", func(t *testing.T) {
		a := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		b := makeLead(2, "123 Main St", "Springfield", "IL", "60601")
		assert.LessOrEqual(t, s.AddressSimilarity(&a, &b), 40.0)
	})

	t.Run("missing zip does not cap", func(t *testing.T) {
		a := makeLead(1, "123 Main St", "Springfield", "IL", "")
		b := makeLead(2, "123 Main St", "Springfield", "IL", "62701")
		assert.Equal(t, 100.0, s.AddressSimilarity(&a, &b))
	})
}

func TestOwnerSimilarity(t *testing.T) {
	s := newTestScorer()

	t.Run("best pairwise match wins", func(t *testing.T) {
		a := makeLead(1, "x", "c", "IL", "62701")
		a.Owner1Name = strPtr("Jane Smith")
		a.Owner2Name = strPtr("John Smith")
		b := makeLead(2, "x", "c", "IL", "62701")
		b.Owner1Name = strPtr("John Smith Jr.")
		assert.Equal(t, 100.0, s.OwnerSimilarity(&a, &b))
	})

	t.Run("missing either side scores zero", func(t *testing.T) {
		a := makeLead(1, "x", "c", "IL", "62701")
		a.Owner1Name = strPtr("John Smith")
		b := makeLead(2, "x", "c", "IL", "62701")
		assert.Equal(t, 0.0, s.OwnerSimilarity(&a, &b))
		assert.Equal(t, 0.0, s.OwnerSimilarity(&b, &b))
	})
}

func TestGPSProximity(t *testing.T) {
	s := newTestScorer()

	lead := func(id int64, lat, lon float64) models.Lead {
		l := makeLead(id, "123 Main St", "Springfield", "IL", "62701")
		l.Latitude = f64Ptr(lat)
		l.Longitude = f64Ptr(lon)
		return l
	}

	t.Run("within match radius scores 100", func(t *testing.T) {
		a := lead(1, 39.7817, -89.6501)
		b := lead(2, 39.78171, -89.65011)
		assert.Equal(t, 100.0, s.GPSProximity(&a, &b))
	})

	t.Run("beyond zero radius scores 0", func(t *testing.T) {
		a := lead(1, 39.7817, -89.6501)
		b := lead(2, 39.79, -89.6501) // ~900m north
		assert.Equal(t, 0.0, s.GPSProximity(&a, &b))
	})

	t.Run("between radii is linear", func(t *testing.T) {
		a := lead(1, 39.7817, -89.6501)
		b := lead(2, 39.78327, -89.6501) // ~175m, midway between 50 and 300
		p := s.GPSProximity(&a, &b)
		assert.Greater(t, p, 40.0)
		assert.Less(t, p, 60.0)
	})

	t.Run("missing coordinates score neutral", func(t *testing.T) {
		a := lead(1, 39.7817, -89.6501)
		b := makeLead(2, "123 Main St", "Springfield", "IL", "62701")
		assert.Equal(t, 50.0, s.GPSProximity(&a, &b))
		assert.Equal(t, 50.0, s.GPSProximity(&b, &b))
	})
}

func TestCompleteness(t *testing.T) {
	s := newTestScorer()

	t.Run("bare lead scores only basic fields", func(t *testing.T) {
		snap := models.LeadSnapshot{Lead: makeLead(1, "123 Main St", "Springfield", "IL", "62701")}
		assert.Equal(t, 20.0, s.Completeness(snap))
	})

	t.Run("fully loaded lead scores 100", func(t *testing.T) {
		lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		lead.Owner1Name = strPtr("John Smith")
		lead.Latitude = f64Ptr(39.78)
		lead.Longitude = f64Ptr(-89.65)
		snap := models.LeadSnapshot{
			Lead:   lead,
			Counts: models.RelatedCounts{Contacts: 3, Notes: 5, Tasks: 2, Photos: 4, Visits: 2},
		}
		assert.Equal(t, 100.0, s.Completeness(snap))
	})

	t.Run("related counts cap out", func(t *testing.T) {
		snap := models.LeadSnapshot{
			Lead:   makeLead(1, "123 Main St", "Springfield", "IL", "62701"),
			Counts: models.RelatedCounts{Contacts: 50},
		}
		assert.Equal(t, 35.0, s.Completeness(snap))
	})
}

func TestQuality(t *testing.T) {
	s := newTestScorer()

	t.Run("hot active recent lead", func(t *testing.T) {
		lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		lead.LeadTemperature = models.TemperatureSuperHot
		lead.LastActivityAt = timePtr(testNow.Add(-24 * time.Hour))
		// 50 base + 25 temp + 10 active + 15 recency
		assert.Equal(t, 100.0, s.Quality(lead))
	})

	t.Run("dead archived lead", func(t *testing.T) {
		lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		lead.LeadTemperature = models.TemperatureDead
		lead.DeskStatus = models.DeskStatusArchived
		assert.Equal(t, 20.0, s.Quality(lead))
	})

	t.Run("recency bands", func(t *testing.T) {
		lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		lead.LastActivityAt = timePtr(testNow.Add(-60 * 24 * time.Hour))
		// 50 base + 10 warm + 10 active + 10 within 90 days
		assert.Equal(t, 80.0, s.Quality(lead))
	})

	t.Run("unworked bin lead sits at base", func(t *testing.T) {
		lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
		lead.DeskStatus = models.DeskStatusBin
		lead.LeadTemperature = models.TemperatureCold
		// neither cold nor bin adjusts the base 50
		assert.Equal(t, 50.0, s.Quality(lead))

		lead.LeadTemperature = models.TemperatureTBD
		assert.Equal(t, 50.0, s.Quality(lead))
	})
}

func TestScore_Determinism(t *testing.T) {
	s := newTestScorer()

	a := models.LeadSnapshot{Lead: makeLead(1, "123 Main St", "Springfield", "IL", "62701")}
	a.Owner1Name = strPtr("John Smith")
	b := models.LeadSnapshot{Lead: makeLead(2, "123 Main Street", "Springfield", "IL", "62701")}
	b.Owner1Name = strPtr("John Smith Jr")

	first := s.Score(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(a, b))
	}
}

func TestScore_SuggestedPrimary(t *testing.T) {
	s := newTestScorer()

	t.Run("richer lead wins", func(t *testing.T) {
		a := models.LeadSnapshot{Lead: makeLead(1, "123 Main St", "Springfield", "IL", "62701")}
		b := models.LeadSnapshot{
			Lead:   makeLead(2, "123 Main Street", "Springfield", "IL", "62701"),
			Counts: models.RelatedCounts{Contacts: 3, Notes: 3},
		}
		b.Owner1Name = strPtr("John Smith")

		got := s.Score(a, b)
		assert.Equal(t, int64(2), got.SuggestedPrimaryID)
		assert.Equal(t, int64(1), got.SuggestedSecondaryID)
		assert.Equal(t, a.Counts, got.TransferSummary)
	})

	t.Run("exact tie falls to lower id", func(t *testing.T) {
		a := models.LeadSnapshot{Lead: makeLead(7, "123 Main St", "Springfield", "IL", "62701")}
		b := models.LeadSnapshot{Lead: makeLead(3, "123 Main St", "Springfield", "IL", "62701")}

		got := s.Score(a, b)
		assert.Equal(t, int64(3), got.SuggestedPrimaryID)
	})

	t.Run("argument order does not change the primary", func(t *testing.T) {
		a := models.LeadSnapshot{Lead: makeLead(1, "123 Main St", "Springfield", "IL", "62701")}
		b := models.LeadSnapshot{
			Lead:   makeLead(2, "123 Main Street", "Springfield", "IL", "62701"),
			Counts: models.RelatedCounts{Contacts: 2},
		}

		ab := s.Score(a, b)
		ba := s.Score(b, a)
		assert.Equal(t, ab.SuggestedPrimaryID, ba.SuggestedPrimaryID)
		assert.Equal(t, ab.OverallScore, ba.OverallScore)
	})
}

func TestScore_ConfidenceLadder(t *testing.T) {
	s := newTestScorer()

	assert.Equal(t, models.ConfidenceHigh, s.Confidence(95))
	assert.Equal(t, models.ConfidenceHigh, s.Confidence(90))
	assert.Equal(t, models.ConfidenceMedium, s.Confidence(89.9))
	assert.Equal(t, models.ConfidenceMedium, s.Confidence(70))
	assert.Equal(t, models.ConfidenceLow, s.Confidence(69.9))
	assert.Equal(t, models.ConfidenceLow, s.Confidence(50))
	assert.Equal(t, models.ConfidenceVeryLow, s.Confidence(49.9))
}

func TestScore_IdenticalLeadsScoreHigh(t *testing.T) {
	s := newTestScorer()

	lead := makeLead(1, "123 Main St", "Springfield", "IL", "62701")
	lead.Owner1Name = strPtr("John Smith")
	lead.Latitude = f64Ptr(39.7817)
	lead.Longitude = f64Ptr(-89.6501)
	a := models.LeadSnapshot{Lead: lead, Counts: models.RelatedCounts{Contacts: 2, Notes: 2}}

	twin := lead
	twin.ID = 2
	b := models.LeadSnapshot{Lead: twin, Counts: models.RelatedCounts{Contacts: 1}}

	got := s.Score(a, b)
	require.NotEmpty(t, got.Reasoning)
	assert.GreaterOrEqual(t, got.OverallScore, s.cfg.MediumCutoff)
	assert.Equal(t, 100.0, got.Scores.AddressSimilarity)
	assert.Equal(t, 100.0, got.Scores.OwnerNameSimilarity)
	assert.Equal(t, 100.0, got.Scores.GPSProximity)
}

func TestScore_RiskPenalties(t *testing.T) {
	s := newTestScorer()

	t.Run("different agents and rich data raise risk", func(t *testing.T) {
		a := models.LeadSnapshot{
			Lead:   makeLead(1, "123 Main St", "Springfield", "IL", "62701"),
			Counts: models.RelatedCounts{Contacts: 5, Notes: 5},
		}
		a.AssignedAgentID = i64Ptr(11)
		b := models.LeadSnapshot{
			Lead:   makeLead(2, "123 Main St", "Springfield", "IL", "62701"),
			Counts: models.RelatedCounts{Contacts: 5, Notes: 5},
		}
		b.AssignedAgentID = i64Ptr(22)

		risk := s.Risk(a, b, 100, 0)
		assert.GreaterOrEqual(t, risk, 30.0)
	})

	t.Run("clean near-identical pair has no risk", func(t *testing.T) {
		a := models.LeadSnapshot{Lead: makeLead(1, "123 Main St", "Springfield", "IL", "62701")}
		b := models.LeadSnapshot{Lead: makeLead(2, "123 Main St", "Springfield", "IL", "62701")}
		assert.Equal(t, 0.0, s.Risk(a, b, 100, 0))
	})
}
