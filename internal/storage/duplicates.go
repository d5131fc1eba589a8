package storage

import (
	"context"
	"strings"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
)

// DuplicateCheckResult lists existing books an import might duplicate
type DuplicateCheckResult struct {
	IsDuplicate bool          `json:"is_duplicate"`
	MatchedBy   []string      `json:"matched_by,omitempty"`
	Duplicates  []models.Book `json:"duplicates"`
}

// CheckForDuplicate finds books with the same ISBN or the same normalized
// title. It never blocks an import; callers show the result in previews.
func (d *Database) CheckForDuplicate(ctx context.Context, title, isbn string) (*DuplicateCheckResult, error) {
	result := &DuplicateCheckResult{Duplicates: []models.Book{}}
	seen := map[string]bool{}

	add := func(reason string, books []models.Book) {
		if len(books) == 0 {
			return
		}
		result.MatchedBy = append(result.MatchedBy, reason)
		for _, b := range books {
			if !seen[b.ID] {
				seen[b.ID] = true
				result.Duplicates = append(result.Duplicates, b)
			}
		}
	}

	if isbn = strings.TrimSpace(isbn); isbn != "" {
		books, err := d.queryBooks(ctx, "b.isbn = ?", isbn)
		if err != nil {
			return nil, err
		}
		add("isbn", books)
	}

	if normalized := candidate.NormalizeTitle(title); normalized != "" {
		books, err := d.queryBooks(ctx, "b.normalized_title = ?", normalized)
		if err != nil {
			return nil, err
		}
		add("title", books)
	}

	result.IsDuplicate = len(result.Duplicates) > 0
	return result, nil
}
