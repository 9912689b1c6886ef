package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/cache"
	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/config"
	"animalitos-analytics/internal/models"
)

// Extractor pulls today's draws for a lottery out of the configured
// sources, resolving tokens against the catalog and deduplicating within
// the pass. Results are cached for a short TTL so repeated callers do
// not re-scrape.
type Extractor struct {
	client     *FetchClient
	parsers    map[string]PageParser
	resolver   *catalog.Resolver
	todayCache *cache.TTLCache
	sources    []config.SourceConfig
	archiveURL string
	logger     *logrus.Logger
}

// NewExtractor wires an extractor from its collaborators. Sources whose
// parser id is unknown fall back to the "default" parser.
func NewExtractor(client *FetchClient, parsers []PageParser, resolver *catalog.Resolver, todayCache *cache.TTLCache, cfg config.ScraperConfig, logger *logrus.Logger) *Extractor {
	byID := make(map[string]PageParser, len(parsers))
	for _, p := range parsers {
		byID[p.ID()] = p
	}
	return &Extractor{
		client:     client,
		parsers:    byID,
		resolver:   resolver,
		todayCache: todayCache,
		sources:    cfg.Sources,
		archiveURL: cfg.ArchiveURL,
		logger:     logger,
	}
}

// ExtractToday returns today's draws for a lottery. A fresh cache entry
// short-circuits scraping; otherwise sources are tried in tier order and
// the first non-empty yield wins. Exhausting every source produces an
// empty result with a diagnostic provenance entry, never an error and
// never fabricated draws.
func (e *Extractor) ExtractToday(ctx context.Context, lottery models.LotteryID) models.ExtractionResult {
	var cached models.ExtractionResult
	if e.todayCache.Get(ctx, lottery, &cached) {
		cached.Sources = append(cached.Sources, "(cached)")
		return cached
	}

	result := models.ExtractionResult{
		Lottery: lottery,
		Draws:   []models.ExtractedDraw{},
		Date:    time.Now().Format("2006-01-02"),
	}

	for _, src := range orderedSources(e.sources) {
		draws, provenance, err := e.extractFromSource(ctx, src, lottery)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"lottery": lottery,
				"source":  src.Name,
				"error":   err,
			}).Warn("Source extraction failed")
			result.Sources = append(result.Sources, fmt.Sprintf("%s: %v", src.Name, err))
			continue
		}
		if len(draws) == 0 {
			e.logger.WithFields(logrus.Fields{
				"lottery": lottery,
				"source":  src.Name,
			}).Info("Source yielded no draws this cycle")
			result.Sources = append(result.Sources, fmt.Sprintf("%s: no draws", src.Name))
			continue
		}

		result.Draws = draws
		result.Sources = append(result.Sources, provenance)
		result.Source = models.SourcePrimary
		if src.Secondary {
			result.Source = models.SourceSecondary
		}
		e.todayCache.Set(ctx, lottery, result)
		return result
	}

	result.Sources = append(result.Sources, fmt.Sprintf("all %d sources exhausted", len(e.sources)))
	return result
}

// extractFromSource fetches and parses one source, returning resolved,
// deduplicated draws and a provenance string.
func (e *Extractor) extractFromSource(ctx context.Context, src config.SourceConfig, lottery models.LotteryID) ([]models.ExtractedDraw, string, error) {
	fetched, err := e.client.Fetch(ctx, src.URL)
	if err != nil {
		return nil, "", err
	}

	parser := e.parserFor(src.ParserID)
	raws, err := parser.Parse(fetched.Body, lottery)
	if err != nil {
		return nil, "", err
	}

	draws := e.resolveDraws(lottery, raws)
	provenance := src.Name
	if fetched.Route != "direct" {
		provenance = fmt.Sprintf("%s (%s)", src.Name, fetched.Route)
	}
	return draws, provenance, nil
}

// resolveDraws maps raw tokens to entities and deduplicates by
// (hour, entity). Unresolvable tokens are dropped with a warning, never
// inserted as placeholders.
func (e *Extractor) resolveDraws(lottery models.LotteryID, raws []RawDraw) []models.ExtractedDraw {
	seen := make(map[string]struct{}, len(raws))
	var draws []models.ExtractedDraw
	for _, raw := range raws {
		entity, ok := e.resolver.Resolve(raw.Token)
		if !ok {
			e.logger.WithFields(logrus.Fields{
				"lottery": lottery,
				"token":   raw.Token,
			}).Warn("Dropping unresolvable entity token")
			continue
		}
		key := raw.Time24 + "|" + entity.ID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		draws = append(draws, models.ExtractedDraw{
			Hour:        raw.Time24,
			EntityID:    entity.ID,
			IsCompleted: true,
		})
	}
	return draws
}

// ArchiveDraw is a resolved, dated draw from a historical archive page.
type ArchiveDraw struct {
	Date     string
	Hour     string
	EntityID string
}

// ExtractArchivePage fetches one page of the historical archive and
// returns its resolved dated draws. Unlike ExtractToday this propagates
// fetch errors so the backfill driver can count them.
func (e *Extractor) ExtractArchivePage(ctx context.Context, lottery models.LotteryID, page int) ([]ArchiveDraw, error) {
	if e.archiveURL == "" {
		return nil, fmt.Errorf("no archive URL configured")
	}

	pageURL := e.archiveURL
	if strings.Contains(pageURL, "%d") {
		pageURL = fmt.Sprintf(pageURL, page)
	} else {
		pageURL = fmt.Sprintf("%s?page=%d", pageURL, page)
	}

	fetched, err := e.client.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("archive page %d: %w", page, err)
	}

	parser, ok := e.parserFor("default").(*ResultsParser)
	if !ok {
		return nil, fmt.Errorf("default parser does not support archives")
	}
	raws, err := parser.ParseArchive(fetched.Body, lottery)
	if err != nil {
		return nil, fmt.Errorf("archive page %d: %w", page, err)
	}

	seen := make(map[string]struct{}, len(raws))
	var draws []ArchiveDraw
	for _, raw := range raws {
		entity, ok := e.resolver.Resolve(raw.Token)
		if !ok {
			e.logger.WithFields(logrus.Fields{
				"lottery": lottery,
				"token":   raw.Token,
			}).Warn("Dropping unresolvable entity token")
			continue
		}
		key := raw.Date + "|" + raw.Time24 + "|" + entity.ID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		draws = append(draws, ArchiveDraw{Date: raw.Date, Hour: raw.Time24, EntityID: entity.ID})
	}
	return draws, nil
}

// InvalidateCache drops the today-cache entry for a lottery. The
// persistent history is never touched.
func (e *Extractor) InvalidateCache(ctx context.Context, lottery models.LotteryID) error {
	return e.todayCache.Invalidate(ctx, lottery)
}

func (e *Extractor) parserFor(id string) PageParser {
	if p, ok := e.parsers[id]; ok {
		return p
	}
	return e.parsers["default"]
}

// orderedSources returns primary-tier sources before secondary ones,
// keeping configured order within each tier.
func orderedSources(sources []config.SourceConfig) []config.SourceConfig {
	ordered := make([]config.SourceConfig, 0, len(sources))
	for _, s := range sources {
		if !s.Secondary {
			ordered = append(ordered, s)
		}
	}
	for _, s := range sources {
		if s.Secondary {
			ordered = append(ordered, s)
		}
	}
	return ordered
}
