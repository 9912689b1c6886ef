// Package services composes the pipeline: extraction, merge, analysis
// and scoring, with caching at the stage boundaries.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/analysis"
	"animalitos-analytics/internal/cache"
	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/config"
	"animalitos-analytics/internal/models"
	"animalitos-analytics/internal/oracle"
	"animalitos-analytics/internal/scraper"
	"animalitos-analytics/internal/storage"
)

// ErrInsufficientHistory reports a scoring request against too little
// persisted data. Callers never receive a partially computed ranking.
var ErrInsufficientHistory = errors.New("insufficient history for analysis")

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hour24Re  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Pipeline sequences the draw pipeline end to end. All state lives in
// the injected stores and caches; the pipeline itself is stateless and
// safe for concurrent requests.
type Pipeline struct {
	extractor  *scraper.Extractor
	history    *storage.HistoryStore
	analyzer   *analysis.Analyzer
	scorer     *analysis.Scorer
	resolver   *catalog.Resolver
	scoreCache *cache.TTLCache
	predictor  oracle.SupplementaryPredictor // may be nil
	cfg        *config.Config
	logger     *logrus.Logger
}

// NewPipeline wires the pipeline. predictor may be nil; every other
// collaborator is required.
func NewPipeline(extractor *scraper.Extractor, history *storage.HistoryStore, analyzer *analysis.Analyzer, scorer *analysis.Scorer, resolver *catalog.Resolver, scoreCache *cache.TTLCache, predictor oracle.SupplementaryPredictor, cfg *config.Config, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		history:    history,
		analyzer:   analyzer,
		scorer:     scorer,
		resolver:   resolver,
		scoreCache: scoreCache,
		predictor:  predictor,
		cfg:        cfg,
		logger:     logger,
	}
}

// RefreshResult reports one extract-and-merge run.
type RefreshResult struct {
	RunID     string                  `json:"run_id"`
	Lottery   models.LotteryID        `json:"lottery"`
	Extracted models.ExtractionResult `json:"extracted"`
	Added     int                     `json:"added"`
}

// RefreshToday extracts today's draws and merges them into history.
// Extraction failure is not an error here: the result simply carries
// zero draws plus the diagnostic sources.
func (p *Pipeline) RefreshToday(ctx context.Context, lottery models.LotteryID) (RefreshResult, error) {
	runID := uuid.NewString()
	log := p.logger.WithFields(logrus.Fields{"run_id": runID, "lottery": lottery, "stage": "refresh"})

	extracted := p.extractor.ExtractToday(ctx, lottery)

	candidates := make([]models.DrawRecord, 0, len(extracted.Draws))
	now := time.Now().UnixMilli()
	for _, d := range extracted.Draws {
		candidates = append(candidates, models.DrawRecord{
			Date:       extracted.Date,
			Hour:       d.Hour,
			EntityID:   d.EntityID,
			Source:     extracted.Source,
			RecordedAt: now,
		})
	}

	result := RefreshResult{RunID: runID, Lottery: lottery, Extracted: extracted}
	if len(candidates) == 0 {
		log.Info("No draws extracted this cycle")
		return result, nil
	}

	merged, err := p.history.MergeNewRecords(ctx, lottery, candidates)
	if err != nil {
		return result, fmt.Errorf("refresh %s: merge: %w", lottery, err)
	}
	result.Added = merged.Added

	if merged.Added > 0 {
		// New data invalidates any cached ranking.
		if err := p.scoreCache.Invalidate(ctx, lottery); err != nil {
			log.WithField("error", err).Warn("Score cache invalidation failed")
		}
	}

	log.WithFields(logrus.Fields{"extracted": len(extracted.Draws), "added": merged.Added}).Info("Refresh completed")
	return result, nil
}

// History returns the persisted collection, newest first, optionally
// truncated to limit records.
func (p *Pipeline) History(ctx context.Context, lottery models.LotteryID, limit int) ([]models.DrawRecord, error) {
	records, err := p.history.GetHistory(ctx, lottery)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", lottery, err)
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// Stats returns the read-side history aggregate.
func (p *Pipeline) Stats(ctx context.Context, lottery models.LotteryID) (models.HistoryStats, error) {
	stats, err := p.history.GetStats(ctx, lottery)
	if err != nil {
		return models.HistoryStats{}, fmt.Errorf("stats %s: %w", lottery, err)
	}
	return stats, nil
}

// Prediction is a full scored ranking with its provenance.
type Prediction struct {
	Lottery     models.LotteryID          `json:"lottery"`
	Entities    []models.ScoredEntity     `json:"entities"`
	Snapshots   []models.AnalysisSnapshot `json:"snapshots"`
	Weights     models.Weights            `json:"weights"`
	HistorySize int                       `json:"history_size"`
	GeneratedAt time.Time                 `json:"generated_at"`
	FromOracle  bool                      `json:"from_oracle,omitempty"`
}

// Predict runs merge → analyze → score against the latest history. A
// failed extraction degrades gracefully: whatever history is already
// persisted still gets analyzed. weights == nil uses the configured
// defaults and makes the result cacheable; explicit weights always
// recompute.
func (p *Pipeline) Predict(ctx context.Context, lottery models.LotteryID, weights *models.Weights) (Prediction, error) {
	useDefaults := weights == nil
	if useDefaults {
		w := p.defaultWeights()
		weights = &w
	}

	if useDefaults {
		var cached Prediction
		if p.scoreCache.Get(ctx, lottery, &cached) {
			return cached, nil
		}
	}

	// Best effort: fold today's draws in before scoring. Extraction
	// trouble must not block analysis of existing history.
	if _, err := p.RefreshToday(ctx, lottery); err != nil {
		p.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Refresh failed, scoring persisted history only")
	}

	records, err := p.history.GetHistory(ctx, lottery)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict %s: %w", lottery, err)
	}

	minRecords := p.cfg.Analysis.MinHistoryRecords
	if len(records) < minRecords {
		return Prediction{}, fmt.Errorf("predict %s: %w: have %d records, need %d", lottery, ErrInsufficientHistory, len(records), minRecords)
	}

	snapshots := p.analyzer.Analyze(records)
	scored := p.scorer.Score(snapshots, *weights)

	prediction := Prediction{
		Lottery:     lottery,
		Entities:    scored,
		Snapshots:   snapshots,
		Weights:     *weights,
		HistorySize: len(records),
		GeneratedAt: time.Now(),
	}

	if useDefaults {
		p.scoreCache.Set(ctx, lottery, prediction)
	}
	return prediction, nil
}

// PredictWithFallback behaves like Predict, but when history is too thin
// and the supplementary predictor is present it returns the oracle's
// best-effort ranking instead. With no predictor configured the
// statistical error stands.
func (p *Pipeline) PredictWithFallback(ctx context.Context, lottery models.LotteryID, weights *models.Weights) (Prediction, error) {
	prediction, err := p.Predict(ctx, lottery, weights)
	if err == nil || !errors.Is(err, ErrInsufficientHistory) || p.predictor == nil {
		return prediction, err
	}

	ranked, oracleErr := p.predictor.PredictRanked(ctx, lottery)
	if oracleErr != nil {
		p.logger.WithFields(logrus.Fields{"lottery": lottery, "error": oracleErr}).Warn("Supplementary predictor failed")
		return Prediction{}, err
	}

	entities := make([]models.ScoredEntity, 0, len(ranked))
	for i, id := range ranked {
		entities = append(entities, models.ScoredEntity{
			EntityID:    id,
			Rank:        i + 1,
			Category:    models.CategoryWarm,
			Confidence:  models.ConfidenceLow,
			Explanation: "supplementary predictor suggestion",
		})
	}
	return Prediction{
		Lottery:     lottery,
		Entities:    entities,
		GeneratedAt: time.Now(),
		FromOracle:  true,
	}, nil
}

// AddManualRecord resolves the entity token and appends a manual
// correction, subject to the exclusive-per-slot rule.
func (p *Pipeline) AddManualRecord(ctx context.Context, lottery models.LotteryID, date, hour, entityToken string) error {
	if !isoDateRe.MatchString(date) {
		return fmt.Errorf("manual record %s: invalid date %q, want YYYY-MM-DD", lottery, date)
	}
	if !hour24Re.MatchString(hour) {
		return fmt.Errorf("manual record %s: invalid hour %q, want HH:MM", lottery, hour)
	}

	entity, ok := p.resolver.Resolve(entityToken)
	if !ok {
		return fmt.Errorf("manual record %s: unresolvable entity %q", lottery, entityToken)
	}

	if err := p.history.AddManualRecord(ctx, lottery, date, hour, entity); err != nil {
		return err
	}

	if err := p.scoreCache.Invalidate(ctx, lottery); err != nil {
		p.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Score cache invalidation failed")
	}
	return nil
}

// InvalidateCaches drops the today and score caches for a lottery. The
// persistent history is never touched by cache administration.
func (p *Pipeline) InvalidateCaches(ctx context.Context, lottery models.LotteryID) error {
	if err := p.extractor.InvalidateCache(ctx, lottery); err != nil {
		return fmt.Errorf("invalidate today cache %s: %w", lottery, err)
	}
	if err := p.scoreCache.Invalidate(ctx, lottery); err != nil {
		return fmt.Errorf("invalidate score cache %s: %w", lottery, err)
	}
	return nil
}

func (p *Pipeline) defaultWeights() models.Weights {
	w := models.Weights{
		Recent:  p.cfg.Scoring.RecentWeight,
		Total:   p.cfg.Scoring.TotalWeight,
		Absence: p.cfg.Scoring.AbsenceWeight,
	}
	if w.Recent == 0 && w.Total == 0 && w.Absence == 0 {
		return models.DefaultWeights
	}
	return w
}
