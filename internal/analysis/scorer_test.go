package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/models"
)

func TestScoreRankDensity(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	history := []models.DrawRecord{
		drawAt("2024-05-31", "10:00", "leon"),
		drawAt("2024-05-31", "09:00", "leon"),
		drawAt("2024-05-30", "10:00", "tigre"),
		drawAt("2024-05-29", "10:00", "vaca"),
	}

	scored := s.Score(a.Analyze(history), models.DefaultWeights)
	require.Len(t, scored, 37)

	ranks := make(map[int]bool)
	for _, e := range scored {
		ranks[e.Rank] = true
	}
	for want := 1; want <= 37; want++ {
		assert.True(t, ranks[want], "missing rank %d", want)
	}
}

func TestScoreCategoryThresholds(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	scored := s.Score(a.Analyze([]models.DrawRecord{drawAt("2024-05-31", "10:00", "leon")}), models.DefaultWeights)
	require.Len(t, scored, 37)

	for _, e := range scored {
		switch {
		case e.Rank <= 5:
			assert.Equal(t, models.CategoryHot, e.Category, "rank %d", e.Rank)
		case e.Rank <= 15:
			assert.Equal(t, models.CategoryWarm, e.Category, "rank %d", e.Rank)
		case e.Rank <= 25:
			assert.Equal(t, models.CategoryCold, e.Category, "rank %d", e.Rank)
		default:
			assert.Equal(t, models.CategoryFrozen, e.Category, "rank %d", e.Rank)
		}
	}

	assert.Equal(t, models.CategoryHot, scored[0].Category)
	assert.Equal(t, models.CategoryFrozen, scored[36].Category)
}

func TestScoreEmptyHistoryIsCatalogOrder(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	scored := s.Score(a.Analyze(nil), models.DefaultWeights)
	require.Len(t, scored, 37)

	// All scores are zero, so the deterministic tie-break (entity code
	// ascending) leaves the catalog order intact.
	for i, e := range scored {
		assert.Zero(t, e.Score)
		assert.Equal(t, i+1, e.Rank)
		expected, ok := cat.ByCode(fmt.Sprintf("%02d", i))
		require.True(t, ok)
		assert.Equal(t, expected.ID, e.EntityID, "position %d", i)
	}
}

func TestScoreDominantEntityScenario(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-01-02")
	s := NewScorer(cat)

	// Eleven leon draws, newest first, then 26 single appearances spread
	// across other entities.
	var history []models.DrawRecord
	for i := 0; i < 11; i++ {
		history = append(history, drawAt("2024-01-01", fmt.Sprintf("%02d:00", 20-i), "leon"))
	}
	others := []string{
		"ballena", "carnero", "toro", "ciempies", "alacran", "rana",
		"perico", "raton", "aguila", "tigre", "gato", "caballo", "mono",
		"paloma", "zorro", "oso", "pavo", "burro", "chivo", "cochino",
		"gallo", "camello", "cebra", "iguana", "gallina", "vaca",
	}
	for i, id := range others {
		history = append(history, drawAt("2023-12-20", fmt.Sprintf("%02d:0%d", 9+(i%12), i%6), id))
	}

	snapshots := a.Analyze(history)
	leon := snapshotFor(t, snapshots, "leon")
	assert.Greater(t, leon.TotalAppearances, 10)

	scored := s.Score(snapshots, models.DefaultWeights)
	top := scored[0]
	assert.Equal(t, "leon", top.EntityID)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, models.CategoryHot, top.Category)
	assert.Greater(t, top.Score, 70.0)
	assert.Equal(t, models.ConfidenceHigh, top.Confidence)
}

func TestScoreTieBreakByCodeAscending(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	// vaca (26) and toro (02) have identical signal profiles.
	history := []models.DrawRecord{
		drawAt("2024-05-31", "10:00", "vaca"),
		drawAt("2024-05-31", "09:00", "toro"),
	}

	scored := s.Score(a.Analyze(history), models.DefaultWeights)
	var toroRank, vacaRank int
	for _, e := range scored {
		switch e.EntityID {
		case "toro":
			toroRank = e.Rank
		case "vaca":
			vacaRank = e.Rank
		}
	}
	assert.Less(t, toroRank, vacaRank)
}

func TestScoreWeightsAreIndependent(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	snapshots := a.Analyze([]models.DrawRecord{
		drawAt("2024-05-31", "10:00", "leon"),
		drawAt("2024-05-20", "10:00", "tigre"),
	})

	// Absence-only weights rank the long-absent entity above the fresh
	// one; the weights need not sum to 1.
	scored := s.Score(snapshots, models.Weights{Recent: 0, Total: 0, Absence: 3})
	var leonScore, tigreScore float64
	for _, e := range scored {
		switch e.EntityID {
		case "leon":
			leonScore = e.Score
		case "tigre":
			tigreScore = e.Score
		}
	}
	assert.Greater(t, tigreScore, leonScore)
}

func TestScoreNeverSeenCarriesNoAbsenceSignal(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	// tigre appeared twelve days ago; most of the catalog never appeared
	// at all. The sentinel must not let the never-seen entities outscore
	// a genuinely absent one.
	snapshots := a.Analyze([]models.DrawRecord{
		drawAt("2024-05-20", "10:00", "tigre"),
	})

	scored := s.Score(snapshots, models.Weights{Recent: 0, Total: 0, Absence: 1})
	var tigreScore float64
	for _, e := range scored {
		if e.EntityID == "tigre" {
			tigreScore = e.Score
			continue
		}
		assert.Zero(t, e.Score, "entity %s", e.EntityID)
	}
	assert.Greater(t, tigreScore, 0.0)
}

func TestExplanationAlwaysPresent(t *testing.T) {
	cat := catalog.New()
	a := fixedAnalyzer("2024-06-01")
	s := NewScorer(cat)

	for _, scored := range [][]models.ScoredEntity{
		s.Score(a.Analyze(nil), models.DefaultWeights),
		s.Score(a.Analyze([]models.DrawRecord{drawAt("2024-05-31", "10:00", "leon")}), models.DefaultWeights),
	} {
		for _, e := range scored {
			assert.NotEmpty(t, e.Explanation)
		}
	}
}
