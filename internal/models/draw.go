package models

import (
	"fmt"
	"time"
)

// LotteryID identifies one of the supported lottery variants.
type LotteryID string

const (
	LotteryLottoActivo LotteryID = "lotto-activo"
	LotteryLaGranjita  LotteryID = "la-granjita"
)

// Lotteries is the fixed set of supported lottery identifiers.
var Lotteries = []LotteryID{LotteryLottoActivo, LotteryLaGranjita}

// ParseLotteryID validates a lottery identifier from an external caller.
func ParseLotteryID(s string) (LotteryID, error) {
	for _, id := range Lotteries {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown lottery %q", s)
}

// RecordSource describes where a draw record came from.
type RecordSource string

const (
	SourcePrimary   RecordSource = "primary"
	SourceSecondary RecordSource = "secondary"
	SourceManual    RecordSource = "manual"
)

// Entity is one catalog animal. Immutable after catalog load.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"` // two digits, "00".."36"
	Icon string `json:"icon"`
}

// DrawRecord is one observed draw result. Records are append-only: once
// persisted, date/hour/entity/source never change.
type DrawRecord struct {
	Date       string       `json:"date"` // ISO date, YYYY-MM-DD
	Hour       string       `json:"hour"` // 24h, HH:MM
	EntityID   string       `json:"entity_id"`
	Source     RecordSource `json:"source"`
	RecordedAt int64        `json:"recorded_at"` // epoch millis at insert
}

// DedupKey is the identity used by the automatic merge path.
func (r DrawRecord) DedupKey() string {
	return r.Date + "|" + r.Hour + "|" + r.EntityID
}

// SlotKey identifies a (date, hour) slot regardless of entity, used by
// the exclusive manual-insert rule.
func (r DrawRecord) SlotKey() string {
	return r.Date + "|" + r.Hour
}

// ExtractedDraw is a single (hour, entity) pair pulled out of a results
// page before it becomes a persisted DrawRecord.
type ExtractedDraw struct {
	Hour        string `json:"hour"` // 24h, HH:MM
	EntityID    string `json:"entity_id"`
	IsCompleted bool   `json:"is_completed"`
}

// ExtractionResult is the extractor's output: the draws plus a provenance
// trail of the sources and fallbacks that produced (or failed to produce)
// them.
type ExtractionResult struct {
	Lottery LotteryID       `json:"lottery"`
	Draws   []ExtractedDraw `json:"draws"`
	Sources []string        `json:"sources"`
	Date    string          `json:"date"`   // ISO date the draws belong to
	Source  RecordSource    `json:"source"` // tier of the winning source
}

// AnalysisSnapshot is the per-entity frequency/recency view, recomputed in
// full on every analysis request. Never persisted.
type AnalysisSnapshot struct {
	EntityID                string     `json:"entity_id"`
	TotalAppearances        int        `json:"total_appearances"`
	TotalFrequencyPct       float64    `json:"total_frequency_pct"`
	RecentAppearances       [3]int     `json:"recent_appearances"`   // windows 5, 10, 20
	RecentFrequencyPct      [3]float64 `json:"recent_frequency_pct"` // windows 5, 10, 20
	DaysSinceLastAppearance int        `json:"days_since_last_appearance"`
	LastAppearanceDate      string     `json:"last_appearance_date,omitempty"`
	IsHot                   bool       `json:"is_hot"`
	IsCold                  bool       `json:"is_cold"`
}

// Window indices into RecentAppearances / RecentFrequencyPct.
const (
	Window5 = iota
	Window10
	Window20
)

// WindowSizes are the sliding recent-window sizes, in records.
var WindowSizes = [3]int{5, 10, 20}

// DaysSinceNever is the sentinel for entities with no appearance on record.
const DaysSinceNever = 999

// Weights configures the scoring engine's three signals. They are
// independent knobs and are not required to sum to 1.
type Weights struct {
	Recent  float64 `json:"recent"`
	Total   float64 `json:"total"`
	Absence float64 `json:"absence"`
}

// DefaultWeights are the conventional weights: recency dominates.
var DefaultWeights = Weights{Recent: 0.5, Total: 0.3, Absence: 0.2}

// Category is the rank-derived tier; it is computed independently of the
// snapshot-level IsHot/IsCold flags and the two may disagree.
type Category string

const (
	CategoryHot    Category = "hot"
	CategoryWarm   Category = "warm"
	CategoryCold   Category = "cold"
	CategoryFrozen Category = "frozen"
)

// Confidence is a coarse reliability label from score magnitude and
// sample size.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ScoredEntity is one row of a ranked prediction. Request-scoped.
type ScoredEntity struct {
	EntityID    string     `json:"entity_id"`
	Score       float64    `json:"score"`
	Rank        int        `json:"rank"` // sequential 1..N, no gaps or repeats
	Category    Category   `json:"category"`
	Confidence  Confidence `json:"confidence"`
	Explanation string     `json:"explanation"`
}

// DateRange is the span of dates covered by a history.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HistoryStats is the read-side aggregate over a persisted history.
type HistoryStats struct {
	TotalEntries int       `json:"total_entries"`
	DateRange    DateRange `json:"date_range"`
	Sources      []string  `json:"sources"`
	LastUpdate   time.Time `json:"last_update"`
}

// MergeResult reports what a batch merge changed.
type MergeResult struct {
	Added int `json:"added"`
}

// BackfillResult reports the outcome of a bulk historical load.
type BackfillResult struct {
	Loaded     int `json:"loaded"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
	Pages      int `json:"pages"`
}
