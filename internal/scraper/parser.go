package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/models"
)

// RawDraw is an (entity token, time) pair pulled out of a page before
// entity resolution.
type RawDraw struct {
	Token  string
	Time24 string // HH:MM
	Date   string // ISO date when the page carries one, else empty
}

// PageParser extracts raw draws from one source's HTML. Parsers are
// selected by source identifier so new sites plug in without touching
// the extractor.
type PageParser interface {
	ID() string
	Parse(html string, lottery models.LotteryID) ([]RawDraw, error)
}

// sectionMarkers isolate the page region belonging to one lottery
// variant. When the marker is missing the whole page is scanned.
var sectionMarkers = map[models.LotteryID][]string{
	models.LotteryLottoActivo: {"LOTTO ACTIVO", "LOTO ACTIVO"},
	models.LotteryLaGranjita:  {"LA GRANJITA", "GRANJITA"},
}

var (
	// timeRe matches clock tokens with an optional meridiem: "9:00 AM",
	// "07:30 p.m." or a bare "19:30".
	timeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})(?:\s*([AaPp])\.?\s*[Mm]\.?)?`)

	// pairRe is the primary pattern tuned to the known result-block
	// structure: a code-plus-name token, a separator, then the 12-hour
	// draw time.
	pairRe = regexp.MustCompile(`(?i)(\d{1,2}\s*[-–]?\s*[\p{L}]+(?:\s[\p{L}]+)?|[\p{L}]+(?:\s[\p{L}]+)?)(?:\s*[-–:]\s*|\s+)(\d{1,2}:\d{2}\s*[AaPp]\.?\s*[Mm]\.?)`)

	// dateRe matches ISO dates on archive pages.
	dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// ResultsParser is the regex-driven parser for the standard results
// layout, with a proximity heuristic fallback when the primary pattern
// yields nothing.
type ResultsParser struct {
	id             string
	cat            *catalog.Catalog
	proximityChars int
}

// NewResultsParser builds the default parser. proximityChars bounds how
// far, in characters, the fallback will look from a time token for an
// entity token.
func NewResultsParser(id string, cat *catalog.Catalog, proximityChars int) *ResultsParser {
	if proximityChars <= 0 {
		proximityChars = 200
	}
	return &ResultsParser{id: id, cat: cat, proximityChars: proximityChars}
}

func (p *ResultsParser) ID() string {
	return p.id
}

// Parse extracts raw draws for a lottery from an HTML page.
func (p *ResultsParser) Parse(html string, lottery models.LotteryID) ([]RawDraw, error) {
	text, err := pageText(html)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	section := isolateSection(text, lottery)

	draws := p.primaryMatch(section)
	if len(draws) == 0 {
		draws = p.proximityMatch(section)
	}
	return draws, nil
}

// primaryMatch applies the tuned pair pattern.
func (p *ResultsParser) primaryMatch(section string) []RawDraw {
	var draws []RawDraw
	for _, m := range pairRe.FindAllStringSubmatch(section, -1) {
		t24, ok := To24Hour(m[2])
		if !ok {
			continue
		}
		token := strings.TrimSpace(m[1])
		if token == "" {
			continue
		}
		draws = append(draws, RawDraw{Token: token, Time24: t24})
	}
	return draws
}

// proximityMatch independently locates time tokens and known entity
// tokens, then pairs each time with the nearest entity within the
// character window. Times with no nearby entity are discarded. Matching
// runs over a case- and accent-folded copy so "LEÓN" and "leon" both
// count, with time offsets taken from the same copy.
func (p *ResultsParser) proximityMatch(section string) []RawDraw {
	folded := catalog.Fold(section)

	times := timeRe.FindAllStringIndex(folded, -1)
	if len(times) == 0 {
		return nil
	}

	entityHits := p.locateEntityTokens(folded, times)
	if len(entityHits) == 0 {
		return nil
	}

	var draws []RawDraw
	for _, t := range times {
		t24, ok := To24Hour(folded[t[0]:t[1]])
		if !ok {
			continue
		}
		best := -1
		bestDist := p.proximityChars + 1
		for i, hit := range entityHits {
			dist := hit.pos - t[0]
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best = i
				bestDist = dist
			}
		}
		if best == -1 {
			continue
		}
		draws = append(draws, RawDraw{Token: entityHits[best].token, Time24: t24})
	}
	return draws
}

type entityHit struct {
	token string
	pos   int
}

var numberTokenRe = regexp.MustCompile(`\b\d{1,2}\b`)

// locateEntityTokens finds every occurrence of a catalog name or code in
// folded text. Number hits that fall inside a time token are ignored so
// "07:30" does not count as animal 07.
func (p *ResultsParser) locateEntityTokens(folded string, times [][]int) []entityHit {
	var hits []entityHit
	for _, e := range p.cat.Entities() {
		name := catalog.Fold(e.Name)
		idx := 0
		for {
			found := strings.Index(folded[idx:], name)
			if found == -1 {
				break
			}
			hits = append(hits, entityHit{token: e.Name, pos: idx + found})
			idx += found + len(name)
		}
	}

	for _, m := range numberTokenRe.FindAllStringIndex(folded, -1) {
		if insideAny(m[0], times) {
			continue
		}
		code := folded[m[0]:m[1]]
		if len(code) == 1 {
			code = "0" + code
		}
		e, ok := p.cat.ByCode(code)
		if !ok {
			continue
		}
		hits = append(hits, entityHit{token: e.Name, pos: m[0]})
	}
	return hits
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// pageText renders an HTML document to whitespace-separated text.
func pageText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	text := doc.Text()
	return strings.Join(strings.Fields(text), " "), nil
}

// isolateSection cuts the text down to the requested lottery's region:
// from its heading marker to the next lottery's marker, or to the end.
// Missing markers fall back to the whole page.
func isolateSection(text string, lottery models.LotteryID) string {
	upper := strings.ToUpper(text)

	start := -1
	for _, marker := range sectionMarkers[lottery] {
		if idx := strings.Index(upper, marker); idx != -1 {
			start = idx
			break
		}
	}
	if start == -1 {
		return text
	}

	end := len(text)
	for other, markers := range sectionMarkers {
		if other == lottery {
			continue
		}
		for _, marker := range markers {
			if idx := strings.Index(upper[start+1:], marker); idx != -1 && start+1+idx < end {
				end = start + 1 + idx
			}
		}
	}
	return text[start:end]
}

// To24Hour converts a clock token to "HH:MM". Tokens with a meridiem are
// read as 12-hour times; without one they must already be a valid 24-hour
// time. Reports false on anything that does not look like a clock time.
func To24Hour(token string) (string, bool) {
	m := timeRe.FindStringSubmatch(token)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil || minute > 59 {
		return "", false
	}

	if m[3] == "" {
		if hour > 23 {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if hour < 1 || hour > 12 {
		return "", false
	}
	pm := strings.EqualFold(m[3], "p")
	if pm && hour != 12 {
		hour += 12
	}
	if !pm && hour == 12 {
		hour = 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ParseArchive extracts dated draws from a historical archive page. Date
// headers precede their result blocks, so each raw draw inherits the
// closest preceding ISO date; draws before the first date are dropped.
func (p *ResultsParser) ParseArchive(html string, lottery models.LotteryID) ([]RawDraw, error) {
	text, err := pageText(html)
	if err != nil {
		return nil, fmt.Errorf("parse archive page: %w", err)
	}
	section := isolateSection(text, lottery)

	dates := dateRe.FindAllStringIndex(section, -1)
	if len(dates) == 0 {
		return nil, nil
	}

	var draws []RawDraw
	for _, m := range pairRe.FindAllStringSubmatchIndex(section, -1) {
		pos := m[0]
		date := ""
		for _, d := range dates {
			if d[0] > pos {
				break
			}
			date = section[d[0]:d[1]]
		}
		if date == "" {
			continue
		}
		t24, ok := To24Hour(section[m[4]:m[5]])
		if !ok {
			continue
		}
		token := strings.TrimSpace(section[m[2]:m[3]])
		if token == "" {
			continue
		}
		draws = append(draws, RawDraw{Token: token, Time24: t24, Date: date})
	}
	return draws, nil
}
