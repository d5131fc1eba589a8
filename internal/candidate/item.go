// Package candidate defines the canonical shapes shared by every search
// source: result items, author references, queries and the write-ready
// import candidates built from them.
package candidate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Source identifies where an item came from.
type Source string

const (
	SourceLocal       Source = "local"
	SourceGoogleBooks Source = "google_books"
	SourceOpenLibrary Source = "open_library"
	SourceDNB         Source = "dnb"
	SourceCoverScan   Source = "cover_scan"
)

// ExternalSources lists the providers queried by external searches, in
// their default order.
var ExternalSources = []Source{SourceGoogleBooks, SourceOpenLibrary, SourceDNB}

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	switch s {
	case SourceLocal, SourceGoogleBooks, SourceOpenLibrary, SourceDNB, SourceCoverScan:
		return true
	}
	return false
}

// AuthorRef is one author as reported by a source.
type AuthorRef struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

// Empty reports whether the ref carries no usable name at all.
func (a AuthorRef) Empty() bool {
	return strings.TrimSpace(a.FirstName) == "" &&
		strings.TrimSpace(a.LastName) == "" &&
		strings.TrimSpace(a.FullName) == ""
}

// AuthorInput is author data in either of the two accepted shapes: a raw
// "First Last" string or a structured object. It unmarshals from both.
type AuthorInput struct {
	Raw       string `json:"-"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

// UnmarshalJSON accepts a JSON string or object.
func (in *AuthorInput) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*in = AuthorInput{Raw: raw}
		return nil
	}
	type plain AuthorInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*in = AuthorInput(p)
	return nil
}

// ParseAuthorName splits a single "First Last" string on whitespace. The
// last token is the surname and every preceding token is the first name,
// so particles and compound surnames ("van Gogh", "Le Guin") end up in the
// first name. "Last, First" ordering is not recognized here.
func ParseAuthorName(name string) AuthorRef {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return AuthorRef{}
	}
	last := fields[len(fields)-1]
	first := strings.Join(fields[:len(fields)-1], " ")
	return AuthorRef{
		FirstName: first,
		LastName:  last,
		FullName:  strings.Join(fields, " "),
	}
}

// NormalizeAuthor turns either input shape into an AuthorRef.
func NormalizeAuthor(in AuthorInput) AuthorRef {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	full := strings.TrimSpace(in.FullName)

	if first == "" && last == "" {
		name := full
		if name == "" {
			name = in.Raw
		}
		return ParseAuthorName(name)
	}
	if full == "" {
		full = strings.TrimSpace(first + " " + last)
	}
	return AuthorRef{FirstName: first, LastName: last, FullName: full}
}

// NormalizeAuthors maps raw strings and drops entries without a name.
func NormalizeAuthors(names []string) []AuthorRef {
	refs := make([]AuthorRef, 0, len(names))
	for _, n := range names {
		ref := ParseAuthorName(n)
		if !ref.Empty() {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Item is one search hit from any source.
type Item struct {
	ItemID     string         `json:"itemId"`
	Title      string         `json:"title"`
	Authors    []AuthorRef    `json:"authors"`
	ISBN       string         `json:"isbn,omitempty"`
	Year       int            `json:"year,omitempty"`
	Publisher  string         `json:"publisher,omitempty"`
	ExternalID string         `json:"externalId,omitempty"`
	Source     Source         `json:"source"`
	RawPayload map[string]any `json:"rawPayload,omitempty"`
}

// ItemFields is the input to NewItem.
type ItemFields struct {
	ItemID     string
	Title      string
	Authors    []AuthorRef
	ISBN       string
	Year       int
	Publisher  string
	ExternalID string
	Source     Source
	RawPayload map[string]any
}

// NewItem builds a well-formed item: a fresh id when none is supplied, a
// trimmed title, and only author refs that carry a name.
func NewItem(f ItemFields) Item {
	id := f.ItemID
	if id == "" {
		id = uuid.New().String()
	}

	authors := make([]AuthorRef, 0, len(f.Authors))
	for _, a := range f.Authors {
		if a.Empty() {
			continue
		}
		a.FirstName = strings.TrimSpace(a.FirstName)
		a.LastName = strings.TrimSpace(a.LastName)
		a.FullName = strings.TrimSpace(a.FullName)
		if a.FullName == "" {
			a.FullName = strings.TrimSpace(a.FirstName + " " + a.LastName)
		}
		authors = append(authors, a)
	}

	return Item{
		ItemID:     id,
		Title:      strings.TrimSpace(f.Title),
		Authors:    authors,
		ISBN:       strings.TrimSpace(f.ISBN),
		Year:       f.Year,
		Publisher:  strings.TrimSpace(f.Publisher),
		ExternalID: strings.TrimSpace(f.ExternalID),
		Source:     f.Source,
		RawPayload: f.RawPayload,
	}
}

// DedupKey collapses near-duplicates across sources and pages: the
// normalized title plus the normalized author names.
func DedupKey(item Item) string {
	names := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		name := a.FullName
		if name == "" {
			name = a.FirstName + " " + a.LastName
		}
		names = append(names, NormalizeTitle(name))
	}
	return NormalizeTitle(item.Title) + "|" + strings.Join(names, ",")
}

// Dedup keeps the first item per DedupKey, preserving order.
func Dedup(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		key := DedupKey(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// CountBySource counts items per source tag. Sources without items are
// absent from the map.
func CountBySource(items []Item) map[Source]int {
	counts := make(map[Source]int)
	for _, it := range items {
		counts[it.Source]++
	}
	return counts
}
