// Package oracle models the optional external prediction fallback: an
// opaque service that answers with free text from which a best-effort
// ranked list is recovered. The statistical pipeline never depends on it.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/models"
)

// SupplementaryPredictor is the polymorphic fallback capability. A nil
// predictor is valid everywhere one is accepted.
type SupplementaryPredictor interface {
	// PredictRanked returns a best-effort ranked entity-id list for a
	// lottery, most likely first.
	PredictRanked(ctx context.Context, lottery models.LotteryID) ([]string, error)
}

// HTTPOracle asks a configured endpoint for a free-text prediction and
// recovers entity mentions from the reply through the resolver.
type HTTPOracle struct {
	httpClient *http.Client
	url        string
	resolver   *catalog.Resolver
	logger     *logrus.Logger
}

// NewHTTPOracle builds an oracle client. Returns nil when no URL is
// configured so callers can treat the capability as absent.
func NewHTTPOracle(url string, timeout time.Duration, resolver *catalog.Resolver, logger *logrus.Logger) *HTTPOracle {
	if url == "" {
		return nil
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOracle{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		resolver:   resolver,
		logger:     logger,
	}
}

type oracleRequest struct {
	Lottery string `json:"lottery"`
	Prompt  string `json:"prompt"`
}

type oracleResponse struct {
	Text string `json:"text"`
}

// PredictRanked queries the oracle and parses its free-text answer.
func (o *HTTPOracle) PredictRanked(ctx context.Context, lottery models.LotteryID) ([]string, error) {
	payload, err := json.Marshal(oracleRequest{
		Lottery: string(lottery),
		Prompt:  "Rank the most likely animalitos for the next draw, most likely first.",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("create oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read oracle response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("oracle error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed oracleResponse
	text := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Text != "" {
		text = parsed.Text
	}

	ranked := o.parseFreeText(text)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("oracle reply contained no recognizable entities")
	}
	return ranked, nil
}

var tokenRe = regexp.MustCompile(`\d{1,2}|[\p{L}]+`)

// parseFreeText walks the reply's word and number tokens in order,
// keeping the first resolution of each entity. Order of first mention is
// the ranking. Single digits and very short words are skipped: list
// markers ("1.", "2.") and stop words would otherwise resolve to codes.
func (o *HTTPOracle) parseFreeText(text string) []string {
	seen := make(map[string]struct{})
	var ranked []string
	for _, token := range tokenRe.FindAllString(text, -1) {
		if len(token) < 2 || (len([]rune(token)) < 4 && !isDigits(token)) {
			continue
		}
		entity, ok := o.resolver.Resolve(token)
		if !ok {
			continue
		}
		if _, dup := seen[entity.ID]; dup {
			continue
		}
		seen[entity.ID] = struct{}{}
		ranked = append(ranked, entity.ID)
	}
	return ranked
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
