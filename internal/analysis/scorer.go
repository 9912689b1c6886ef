package analysis

import (
	"fmt"
	"sort"
	"strings"

	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/models"
)

// Rank thresholds for the four tiers. The tiers are derived purely from
// rank and are independent of the snapshot-level IsHot/IsCold flags; the
// two signals may disagree and both are kept.
const (
	hotRankMax  = 5
	warmRankMax = 15
	coldRankMax = 25
)

// Confidence cutoffs combining score magnitude with sample size.
const (
	highScoreMin    = 70.0
	highSampleMin   = 10
	mediumScoreMin  = 40.0
	mediumSampleMin = 5
)

// Scorer combines analyzer snapshots into a single weighted ranking.
type Scorer struct {
	catalog *catalog.Catalog
}

// NewScorer builds a scorer over the catalog.
func NewScorer(c *catalog.Catalog) *Scorer {
	return &Scorer{catalog: c}
}

// Score ranks every snapshot by the weighted combination of its recent
// frequency, total frequency and days-since-last-appearance signals.
// Each signal is normalized by its maximum across this run, so scores
// are relative to the field, not absolute. The never-appeared sentinel
// carries no absence signal, so an empty history scores everything zero.
// Ranks are sequential 1..N; score ties break deterministically by
// entity code ascending.
func (s *Scorer) Score(snapshots []models.AnalysisSnapshot, weights models.Weights) []models.ScoredEntity {
	var maxRecent, maxTotal, maxDays float64
	for _, snap := range snapshots {
		if v := snap.RecentFrequencyPct[models.Window10]; v > maxRecent {
			maxRecent = v
		}
		if snap.TotalFrequencyPct > maxTotal {
			maxTotal = snap.TotalFrequencyPct
		}
		if snap.DaysSinceLastAppearance == models.DaysSinceNever {
			continue
		}
		if v := float64(snap.DaysSinceLastAppearance); v > maxDays {
			maxDays = v
		}
	}

	scored := make([]models.ScoredEntity, 0, len(snapshots))
	codes := make(map[string]string, len(snapshots))
	for _, snap := range snapshots {
		recent := normalize(snap.RecentFrequencyPct[models.Window10], maxRecent)
		total := normalize(snap.TotalFrequencyPct, maxTotal)
		absence := 0.0
		if snap.DaysSinceLastAppearance != models.DaysSinceNever {
			absence = normalize(float64(snap.DaysSinceLastAppearance), maxDays)
		}

		score := (recent*weights.Recent + total*weights.Total + absence*weights.Absence) * 100

		scored = append(scored, models.ScoredEntity{
			EntityID:    snap.EntityID,
			Score:       score,
			Confidence:  confidence(score, snap.TotalAppearances),
			Explanation: explain(snap),
		})
		if e, ok := s.catalog.ByID(snap.EntityID); ok {
			codes[snap.EntityID] = e.Code
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return codes[scored[i].EntityID] < codes[scored[j].EntityID]
	})

	for i := range scored {
		scored[i].Rank = i + 1
		scored[i].Category = categorize(i + 1)
	}
	return scored
}

func normalize(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max
}

func categorize(rank int) models.Category {
	switch {
	case rank <= hotRankMax:
		return models.CategoryHot
	case rank <= warmRankMax:
		return models.CategoryWarm
	case rank <= coldRankMax:
		return models.CategoryCold
	default:
		return models.CategoryFrozen
	}
}

func confidence(score float64, appearances int) models.Confidence {
	switch {
	case score > highScoreMin && appearances > highSampleMin:
		return models.ConfidenceHigh
	case score > mediumScoreMin && appearances > mediumSampleMin:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// explain concatenates the applicable natural-language fragments in
// fixed priority order: recent trend, absence, total frequency.
func explain(snap models.AnalysisSnapshot) string {
	var parts []string

	recentPct := snap.RecentFrequencyPct[models.Window10]
	switch {
	case snap.IsHot:
		parts = append(parts, fmt.Sprintf("strong recent run (%.0f%% of the last %d draws)", recentPct, models.WindowSizes[models.Window10]))
	case snap.IsCold:
		parts = append(parts, "quiet recent stretch")
	}

	switch {
	case snap.DaysSinceLastAppearance == models.DaysSinceNever:
		parts = append(parts, "never seen in this history")
	case snap.DaysSinceLastAppearance > 7:
		parts = append(parts, fmt.Sprintf("absent for %d days", snap.DaysSinceLastAppearance))
	case snap.DaysSinceLastAppearance == 0:
		parts = append(parts, "appeared today")
	}

	if snap.TotalAppearances > 0 {
		if snap.TotalFrequencyPct >= 4 {
			parts = append(parts, fmt.Sprintf("high overall frequency (%.1f%%)", snap.TotalFrequencyPct))
		} else if snap.TotalFrequencyPct < 1.5 {
			parts = append(parts, "low overall frequency")
		}
	}

	if len(parts) == 0 {
		return "no standout signals"
	}
	return strings.Join(parts, "; ")
}
