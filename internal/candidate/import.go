package candidate

import "strings"

// AuthorCandidate is a write-ready author projection.
type AuthorCandidate struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

// Resolvable reports whether the candidate carries both name parts, which
// the author store requires.
func (a AuthorCandidate) Resolvable() bool {
	return a.FirstName != "" && a.LastName != ""
}

// BookCandidate is a write-ready book projection.
type BookCandidate struct {
	Title   string            `json:"title"`
	Authors []AuthorCandidate `json:"authors"`
	ISBN    string            `json:"isbn,omitempty"`
	Year    int               `json:"year,omitempty"`
}

// BookInput is book-shaped data from an item or from a client.
type BookInput struct {
	Title   string        `json:"title"`
	Authors []AuthorInput `json:"authors"`
	ISBN    string        `json:"isbn"`
	Year    int           `json:"year"`
}

// NewAuthorCandidate projects author input of either shape.
func NewAuthorCandidate(in AuthorInput) AuthorCandidate {
	ref := NormalizeAuthor(in)
	return AuthorCandidate{
		FirstName: ref.FirstName,
		LastName:  ref.LastName,
		FullName:  ref.FullName,
	}
}

// AuthorCandidateFromRef projects an already normalized ref unchanged.
func AuthorCandidateFromRef(ref AuthorRef) AuthorCandidate {
	return NewAuthorCandidate(AuthorInput{
		FirstName: ref.FirstName,
		LastName:  ref.LastName,
		FullName:  ref.FullName,
	})
}

// NewBookCandidate projects book input, normalizing each author and
// dropping authors without a name.
func NewBookCandidate(in BookInput) BookCandidate {
	authors := make([]AuthorCandidate, 0, len(in.Authors))
	for _, a := range in.Authors {
		c := NewAuthorCandidate(a)
		if c.FirstName == "" && c.LastName == "" && c.FullName == "" {
			continue
		}
		authors = append(authors, c)
	}
	return BookCandidate{
		Title:   strings.TrimSpace(in.Title),
		Authors: authors,
		ISBN:    strings.TrimSpace(in.ISBN),
		Year:    in.Year,
	}
}

// BookInputFromItem converts a stored item into book input.
func BookInputFromItem(item Item) BookInput {
	authors := make([]AuthorInput, 0, len(item.Authors))
	for _, a := range item.Authors {
		authors = append(authors, AuthorInput{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			FullName:  a.FullName,
		})
	}
	return BookInput{
		Title:   item.Title,
		Authors: authors,
		ISBN:    item.ISBN,
		Year:    item.Year,
	}
}
