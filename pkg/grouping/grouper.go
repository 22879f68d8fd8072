// Package grouping clusters active leads into disjoint duplicate groups.
package grouping

import (
	"context"
	"math"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/dealdesk/bramble/internal/platform/tracing"
	"github.com/dealdesk/bramble/pkg/models"
	"github.com/dealdesk/bramble/pkg/normalize"
	"github.com/dealdesk/bramble/pkg/scoring"
)

// gpsCellDegrees is the bucketing cell size, roughly 110m of latitude.
// Scoring radii are well under two cells, so checking the 8 neighbor cells
// cannot miss a GPS match.
const gpsCellDegrees = 0.001

// LeadLister supplies the candidate universe for a detection run.
type LeadLister interface {
	ListActiveSnapshots(ctx context.Context) ([]models.LeadSnapshot, error)
}

// Grouper finds duplicate groups among active leads. Read-only.
type Grouper struct {
	leads  LeadLister
	scorer *scoring.Scorer
	cfg    scoring.Config
	logger ectologger.Logger
}

func NewGrouper(leads LeadLister, scorer *scoring.Scorer, cfg scoring.Config, logger ectologger.Logger) *Grouper {
	return &Grouper{
		leads:  leads,
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
	}
}

type cellKey struct {
	lat int
	lon int
}

// buckets prunes the candidate space before any scoring happens. A pair is
// only compared when it shares a zip, sits in adjacent GPS cells, or one side
// has no zip and both share a city.
type buckets struct {
	byZip         map[string][]int
	byCell        map[cellKey][]int
	byCity        map[string][]int
	ziplessByCity map[string][]int
}

func buildBuckets(snapshots []models.LeadSnapshot) *buckets {
	b := &buckets{
		byZip:         make(map[string][]int),
		byCell:        make(map[cellKey][]int),
		byCity:        make(map[string][]int),
		ziplessByCity: make(map[string][]int),
	}

	for i := range snapshots {
		lead := &snapshots[i].Lead

		city := normalize.Address(lead.City)
		if city != "" {
			b.byCity[city] = append(b.byCity[city], i)
		}

		if zip := normalize.Zip5(lead.Zipcode); zip != "" {
			b.byZip[zip] = append(b.byZip[zip], i)
		} else if city != "" {
			b.ziplessByCity[city] = append(b.ziplessByCity[city], i)
		}

		if lead.HasCoordinates() {
			b.byCell[cellOf(*lead.Latitude, *lead.Longitude)] = append(
				b.byCell[cellOf(*lead.Latitude, *lead.Longitude)], i)
		}
	}

	return b
}

func cellOf(lat, lon float64) cellKey {
	return cellKey{
		lat: int(math.Floor(lat / gpsCellDegrees)),
		lon: int(math.Floor(lon / gpsCellDegrees)),
	}
}

// candidates returns the indexes worth scoring against snapshot i, excluding
// i itself. Order is ascending and duplicate-free.
func (b *buckets) candidates(snapshots []models.LeadSnapshot, i int) []int {
	lead := &snapshots[i].Lead
	seen := make(map[int]struct{})

	add := func(indexes []int) {
		for _, j := range indexes {
			if j != i {
				seen[j] = struct{}{}
			}
		}
	}

	city := normalize.Address(lead.City)
	if zip := normalize.Zip5(lead.Zipcode); zip != "" {
		add(b.byZip[zip])
		// zipless leads can still be the same property
		add(b.ziplessByCity[city])
	} else if city != "" {
		add(b.byCity[city])
	}

	if lead.HasCoordinates() {
		center := cellOf(*lead.Latitude, *lead.Longitude)
		for dLat := -1; dLat <= 1; dLat++ {
			for dLon := -1; dLon <= 1; dLon++ {
				add(b.byCell[cellKey{lat: center.lat + dLat, lon: center.lon + dLon}])
			}
		}
	}

	out := make([]int, 0, len(seen))
	for j := range seen {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// FindGroups runs duplicate detection across all active leads. Groups are
// disjoint: the single ascending-id pass assigns each lead to at most one
// group, seeded by the lowest id. Result ordering is duplicate count
// descending, then primary id ascending.
func (g *Grouper) FindGroups(ctx context.Context, threshold float64) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "grouping.Grouper.FindGroups")
	defer span.End()

	snapshots, err := g.leads.ListActiveSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	b := buildBuckets(snapshots)
	assigned := make(map[int64]struct{}, len(snapshots))
	groups := []models.DuplicateGroup{}

	for i := range snapshots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seed := &snapshots[i]
		if _, ok := assigned[seed.ID]; ok {
			continue
		}

		var dupes []models.DuplicateMatch
		for _, j := range b.candidates(snapshots, i) {
			if j < i {
				continue // already considered when j was the seed
			}
			candidate := &snapshots[j]
			if _, ok := assigned[candidate.ID]; ok {
				continue
			}

			match, ok := g.classify(*seed, *candidate, threshold)
			if !ok {
				continue
			}
			dupes = append(dupes, match)
			assigned[candidate.ID] = struct{}{}
		}

		if len(dupes) == 0 {
			continue
		}

		assigned[seed.ID] = struct{}{}
		groups = append(groups, models.DuplicateGroup{
			PrimaryLeadID:   seed.ID,
			PrimaryAddress:  seed.FullAddress(),
			Duplicates:      dupes,
			TotalDuplicates: len(dupes),
		})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].TotalDuplicates != groups[b].TotalDuplicates {
			return groups[a].TotalDuplicates > groups[b].TotalDuplicates
		}
		return groups[a].PrimaryLeadID < groups[b].PrimaryLeadID
	})

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"leads":     len(snapshots),
		"groups":    len(groups),
		"threshold": threshold,
	}).Info("Duplicate detection completed")

	return groups, nil
}

// classify decides whether the pair is a duplicate and how it matched:
// exact normalized address, GPS within the tight radius, or address
// similarity at or above the threshold.
func (g *Grouper) classify(a, b models.LeadSnapshot, threshold float64) (models.DuplicateMatch, bool) {
	match := models.DuplicateMatch{
		LeadID:  b.ID,
		Address: b.FullAddress(),
	}

	fullA := normalize.FullAddress(a.AddressLine1, deref(a.AddressLine2), a.City, a.State, a.Zipcode)
	fullB := normalize.FullAddress(b.AddressLine1, deref(b.AddressLine2), b.City, b.State, b.Zipcode)
	if fullA != "" && fullA == fullB {
		match.MatchType = models.MatchTypeExact
		match.Score = 100
		return match, true
	}

	addrSim := g.scorer.AddressSimilarity(&a.Lead, &b.Lead)
	match.Score = addrSim

	if a.HasCoordinates() && b.HasCoordinates() {
		d := scoring.HaversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		if d <= g.cfg.GPSMatchRadiusMeters {
			match.MatchType = models.MatchTypeGPS
			return match, true
		}
	}

	if addrSim >= threshold {
		match.MatchType = models.MatchTypeFuzzy
		return match, true
	}

	return models.DuplicateMatch{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
