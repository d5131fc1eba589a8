// Package search runs title searches against the local library and the
// external providers and keeps their results in search sessions for the
// import flow.
package search

import (
	"context"
	"fmt"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
)

// BookFinder is the slice of the library store local search needs
type BookFinder interface {
	SearchBooksByTitleTokens(ctx context.Context, tokens []string) ([]models.Book, error)
}

// LocalResult is the outcome of a local title search
type LocalResult struct {
	Query candidate.Query
	Items []candidate.Item
}

// LocalSearcher searches the local library by title tokens
type LocalSearcher struct {
	books BookFinder
}

func NewLocalSearcher(books BookFinder) *LocalSearcher {
	return &LocalSearcher{books: books}
}

// SearchByTitle returns local books whose title contains every query token.
// A title without tokens matches nothing and never reaches the store.
func (l *LocalSearcher) SearchByTitle(ctx context.Context, title string) (*LocalResult, error) {
	query := candidate.BuildQuery(title)
	result := &LocalResult{Query: query, Items: []candidate.Item{}}
	if len(query.Tokens) == 0 {
		return result, nil
	}

	books, err := l.books.SearchBooksByTitleTokens(ctx, query.Tokens)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	for _, b := range books {
		result.Items = append(result.Items, bookToItem(b))
	}
	return result, nil
}

func bookToItem(b models.Book) candidate.Item {
	authors := make([]candidate.AuthorRef, 0, len(b.Authors))
	for _, a := range b.Authors {
		authors = append(authors, candidate.AuthorRef{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			FullName:  a.FullName(),
		})
	}
	return candidate.NewItem(candidate.ItemFields{
		Title:      b.Title,
		Authors:    authors,
		ISBN:       b.ISBN,
		Year:       b.Year,
		Publisher:  b.Publisher,
		Source:     candidate.SourceLocal,
		RawPayload: map[string]any{"bookId": b.ID},
	})
}
