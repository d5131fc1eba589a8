package candidate

import (
	"strings"
	"unicode"
)

// NormalizeTitle prepares a title for matching: lowercase, every run of
// characters that are not Unicode letters or digits becomes one space,
// surrounding whitespace trimmed.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	// Collapse whitespace
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits a normalized title on whitespace. An empty result means
// "no matches" to callers, never "match everything".
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// Query is the immutable form of a title search.
type Query struct {
	Title           string   `json:"title"`
	NormalizedTitle string   `json:"normalizedTitle"`
	Tokens          []string `json:"tokens"`
}

// BuildQuery builds a Query from raw user input. It never fails; empty
// input yields empty tokens.
func BuildQuery(title string) Query {
	trimmed := strings.TrimSpace(title)
	normalized := NormalizeTitle(trimmed)
	tokens := Tokenize(normalized)
	if tokens == nil {
		tokens = []string{}
	}
	return Query{
		Title:           trimmed,
		NormalizedTitle: normalized,
		Tokens:          tokens,
	}
}

// Matches reports whether a candidate title contains the normalized query
// as a substring. Looser than the token AND used for local search.
func (q Query) Matches(title string) bool {
	if q.NormalizedTitle == "" {
		return false
	}
	return strings.Contains(NormalizeTitle(title), q.NormalizedTitle)
}

// SameAs reports whether raw input normalizes to the same query.
func (q Query) SameAs(title string) bool {
	return NormalizeTitle(title) == q.NormalizedTitle
}
