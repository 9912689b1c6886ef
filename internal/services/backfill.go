package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/config"
	"animalitos-analytics/internal/models"
)

// ErrBackfillRateLimited reports a bulk load attempted before the
// minimum interval since the last one has passed.
var ErrBackfillRateLimited = errors.New("backfill rate limited")

// Backfill drives the extractor across paginated archive pages, merging
// every page through the same deduplication path as live extraction.
// Bulk loads are rate limited to one per configured interval (default
// seven days) unless force is set.
func (p *Pipeline) Backfill(ctx context.Context, lottery models.LotteryID, maxPages int, force bool) (models.BackfillResult, error) {
	if maxPages <= 0 || maxPages > p.cfg.Backfill.MaxPages {
		maxPages = p.cfg.Backfill.MaxPages
	}

	minInterval := config.Duration(p.cfg.Backfill.MinInterval, 7*24*time.Hour)
	last, err := p.history.LastBackfill(ctx, lottery)
	if err != nil {
		return models.BackfillResult{}, fmt.Errorf("backfill %s: %w", lottery, err)
	}
	if !force && !last.IsZero() {
		if since := time.Since(last); since < minInterval {
			return models.BackfillResult{}, fmt.Errorf("backfill %s: %w: last run %s ago, minimum interval %s", lottery, ErrBackfillRateLimited, since.Round(time.Minute), minInterval)
		}
	}

	log := p.logger.WithFields(logrus.Fields{"lottery": lottery, "stage": "backfill"})

	var result models.BackfillResult
	now := time.Now().UnixMilli()
	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			return result, fmt.Errorf("backfill %s: canceled at page %d: %w", lottery, page, ctx.Err())
		}

		draws, err := p.extractor.ExtractArchivePage(ctx, lottery, page)
		if err != nil {
			log.WithFields(logrus.Fields{"page": page, "error": err}).Warn("Archive page failed")
			result.Errors++
			continue
		}
		result.Pages++
		if len(draws) == 0 {
			// Past the end of the archive.
			break
		}

		candidates := make([]models.DrawRecord, 0, len(draws))
		for _, d := range draws {
			candidates = append(candidates, models.DrawRecord{
				Date:       d.Date,
				Hour:       d.Hour,
				EntityID:   d.EntityID,
				Source:     models.SourcePrimary,
				RecordedAt: now,
			})
		}

		merged, err := p.history.MergeNewRecords(ctx, lottery, candidates)
		if err != nil {
			log.WithFields(logrus.Fields{"page": page, "error": err}).Warn("Archive page merge failed")
			result.Errors++
			continue
		}
		result.Loaded += merged.Added
		result.Duplicates += len(candidates) - merged.Added
	}

	// Only a run that fetched at least one page consumes the rate-limit
	// window; a total failure may be retried immediately.
	if result.Pages > 0 {
		if err := p.history.MarkBackfill(ctx, lottery, time.Now()); err != nil {
			log.WithField("error", err).Warn("Failed to record backfill marker")
		}
	}
	if result.Loaded > 0 {
		if err := p.scoreCache.Invalidate(ctx, lottery); err != nil {
			log.WithField("error", err).Warn("Score cache invalidation failed")
		}
	}

	log.WithFields(logrus.Fields{
		"loaded":     result.Loaded,
		"duplicates": result.Duplicates,
		"errors":     result.Errors,
		"pages":      result.Pages,
	}).Info("Backfill completed")

	return result, nil
}
