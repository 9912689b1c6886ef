// Package analysis computes frequency/recency snapshots over a draw
// history and turns them into a weighted hot/cold ranking.
package analysis

import (
	"time"

	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/models"
)

// Thresholds for the snapshot-level hot/cold flags, as multiples of the
// uniform expected frequency (100 / catalog size).
const (
	hotFactor  = 1.5
	coldFactor = 0.5
)

// Analyzer produces per-entity appearance statistics. Pure and
// stateless: every call recomputes from scratch over the given history.
type Analyzer struct {
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewAnalyzer builds an analyzer over the catalog.
func NewAnalyzer(c *catalog.Catalog) *Analyzer {
	return &Analyzer{catalog: c, now: time.Now}
}

// Analyze computes one snapshot per catalog entity, in catalog order,
// over a history sorted descending by (date, hour). Entities with no
// appearances still get a snapshot with zero frequencies and the
// never-appeared sentinel.
func (a *Analyzer) Analyze(history []models.DrawRecord) []models.AnalysisSnapshot {
	total := len(history)
	expectedPct := 100.0 / float64(a.catalog.Size())

	// Appearance counts, total and per window. The history is sorted
	// most-recent-first, so the recent window of size w is the first w
	// records.
	totalCounts := make(map[string]int, a.catalog.Size())
	windowCounts := make(map[string]*[3]int, a.catalog.Size())
	lastDate := make(map[string]string, a.catalog.Size())

	for i, r := range history {
		totalCounts[r.EntityID]++
		wc, ok := windowCounts[r.EntityID]
		if !ok {
			wc = &[3]int{}
			windowCounts[r.EntityID] = wc
		}
		for w, size := range models.WindowSizes {
			if i < size {
				wc[w]++
			}
		}
		if r.Date > lastDate[r.EntityID] {
			lastDate[r.EntityID] = r.Date
		}
	}

	today := a.now()
	snapshots := make([]models.AnalysisSnapshot, 0, a.catalog.Size())
	for _, e := range a.catalog.Entities() {
		snap := models.AnalysisSnapshot{
			EntityID:                e.ID,
			TotalAppearances:        totalCounts[e.ID],
			DaysSinceLastAppearance: models.DaysSinceNever,
		}
		if total > 0 {
			snap.TotalFrequencyPct = float64(snap.TotalAppearances) / float64(total) * 100
		}

		if wc, ok := windowCounts[e.ID]; ok {
			for w, size := range models.WindowSizes {
				snap.RecentAppearances[w] = wc[w]
				effective := size
				if total < size {
					effective = total
				}
				if effective > 0 {
					snap.RecentFrequencyPct[w] = float64(wc[w]) / float64(effective) * 100
				}
			}
		}

		if date, ok := lastDate[e.ID]; ok {
			snap.LastAppearanceDate = date
			snap.DaysSinceLastAppearance = daysSince(today, date)
		}

		if total > 0 {
			snap.IsHot = snap.RecentFrequencyPct[models.Window10] > hotFactor*expectedPct
			snap.IsCold = snap.RecentFrequencyPct[models.Window10] < coldFactor*expectedPct
		}

		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// daysSince counts whole days from an ISO date to now, clamped at zero.
func daysSince(now time.Time, isoDate string) int {
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return models.DaysSinceNever
	}
	days := int(now.Sub(t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
