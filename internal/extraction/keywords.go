package extraction

import (
	"slices"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Matcher finds configured keywords in posting text in a single pass.
// Matching ignores case and diacritics.
type Matcher struct {
	mu       sync.Mutex
	keywords []string // as configured, used in results
	matcher  *ahocorasick.Matcher
}

// NewMatcher builds the automaton; keyword order decides which match is "first"
func NewMatcher(keywords []string) *Matcher {
	m := &Matcher{}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		n := normalizeText(kw)
		if strings.TrimSpace(n) == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
		normalized = append(normalized, n)
	}
	if len(normalized) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return m
}

// Match returns every keyword found in text, in configured order
func (m *Matcher) Match(text string) []string {
	if m.matcher == nil || text == "" {
		return nil
	}

	m.mu.Lock()
	hits := m.matcher.Match([]byte(normalizeText(text)))
	m.mu.Unlock()

	if len(hits) == 0 {
		return nil
	}
	slices.Sort(hits)
	hits = slices.Compact(hits)

	found := make([]string, 0, len(hits))
	for _, idx := range hits {
		if idx < len(m.keywords) {
			found = append(found, m.keywords[idx])
		}
	}
	return found
}

// First returns the first configured keyword present in text
func (m *Matcher) First(text string) (string, bool) {
	found := m.Match(text)
	if len(found) == 0 {
		return "", false
	}
	return found[0], true
}

// Keywords returns the active keywords
func (m *Matcher) Keywords() []string {
	return slices.Clone(m.keywords)
}

// normalizeText strips diacritics and lower-cases, so "Café" matches "cafe"
func normalizeText(str string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, str)
	if err != nil {
		result = str
	}
	return strings.ToLower(result)
}
