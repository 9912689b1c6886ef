package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"animalitos-analytics/internal/models"
)

// minSimilarity is the normalized edit-distance similarity an entry must
// reach before the fuzzy step accepts it.
const minSimilarity = 0.70

var (
	digitsRe     = regexp.MustCompile(`\d{1,2}`)
	nonLettersRe = regexp.MustCompile(`[^a-z]`)

	// NFD decomposition followed by dropping combining marks strips
	// diacritics: "León" -> "Leon".
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Resolver maps free-text or numeric tokens pulled out of result pages to
// catalog entities. Pure and deterministic over the static catalog.
type Resolver struct {
	catalog    *Catalog
	normalized []string // normalized names, parallel to catalog order
}

// NewResolver builds a resolver over the given catalog.
func NewResolver(c *Catalog) *Resolver {
	r := &Resolver{
		catalog:    c,
		normalized: make([]string, c.Size()),
	}
	for i, e := range c.Entities() {
		r.normalized[i] = Normalize(e.Name)
	}
	return r
}

// Normalize lowercases, strips diacritics and drops everything that is
// not an ASCII letter.
func Normalize(s string) string {
	return nonLettersRe.ReplaceAllString(Fold(s), "")
}

// Fold lowercases and strips diacritics without touching other
// characters, so offsets into folded text still line up with words.
func Fold(s string) string {
	out, _, err := transform.String(deaccent, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Resolve maps a token to a catalog entity, or reports false when the
// token cannot be attributed to any entity. The strategies run in a fixed
// order and the first hit wins:
//
//  1. embedded 1-2 digit number against catalog codes
//  2. exact case-insensitive name match
//  3. normalized (deaccented, letters-only) exact match
//  4. normalized substring containment, either direction
//  5. Levenshtein similarity above minSimilarity, closest entry wins
func (r *Resolver) Resolve(token string) (models.Entity, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Entity{}, false
	}

	if m := digitsRe.FindString(token); m != "" {
		code := m
		if len(code) == 1 {
			code = "0" + code
		}
		if e, ok := r.catalog.ByCode(code); ok {
			return e, true
		}
	}

	for _, e := range r.catalog.Entities() {
		if strings.EqualFold(e.Name, token) {
			return e, true
		}
	}

	normToken := Normalize(token)
	if normToken == "" {
		return models.Entity{}, false
	}
	for i, e := range r.catalog.Entities() {
		if r.normalized[i] == normToken {
			return e, true
		}
	}

	for i, e := range r.catalog.Entities() {
		name := r.normalized[i]
		if strings.Contains(name, normToken) || strings.Contains(normToken, name) {
			return e, true
		}
	}

	return r.fuzzyMatch(normToken)
}

// fuzzyMatch picks the catalog entry with the lowest edit distance from
// the normalized token, accepting it only above the similarity floor.
// Ties keep the first entry in catalog order.
func (r *Resolver) fuzzyMatch(normToken string) (models.Entity, bool) {
	best := -1
	bestDist := 0
	for i, name := range r.normalized {
		dist := levenshtein.ComputeDistance(normToken, name)
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best == -1 {
		return models.Entity{}, false
	}
	maxLen := len([]rune(normToken))
	if l := len([]rune(r.normalized[best])); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return models.Entity{}, false
	}
	similarity := 1 - float64(bestDist)/float64(maxLen)
	if similarity <= minSimilarity {
		return models.Entity{}, false
	}
	return r.catalog.Entities()[best], true
}

// MustResolve is a test/fixture helper that panics on unresolvable tokens.
func (r *Resolver) MustResolve(token string) models.Entity {
	e, ok := r.Resolve(token)
	if !ok {
		panic(fmt.Sprintf("catalog: unresolvable token %q", token))
	}
	return e
}
