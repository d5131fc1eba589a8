package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
	"github.com/justyntemme/biblio/internal/storage"
)

// AuthorStore is the slice of the library store author resolution needs.
// FindAuthorByExactName returns storage.ErrNotFound for unknown names and
// CreateAuthor returns storage.ErrDuplicate when the name already exists.
type AuthorStore interface {
	FindAuthorByExactName(ctx context.Context, firstName, lastName string) (*models.Author, error)
	CreateAuthor(ctx context.Context, firstName, lastName string) (*models.Author, error)
}

// BuildAuthorCandidateFromItem projects the author at index. It reports
// false when the item has no author at that position.
func BuildAuthorCandidateFromItem(item candidate.Item, index int) (candidate.AuthorCandidate, bool) {
	if index < 0 || index >= len(item.Authors) {
		return candidate.AuthorCandidate{}, false
	}
	return candidate.AuthorCandidateFromRef(item.Authors[index]), true
}

// BuildBookCandidateFromItem projects title, authors, ISBN and year.
func BuildBookCandidateFromItem(item candidate.Item) candidate.BookCandidate {
	return candidate.NewBookCandidate(candidate.BookInputFromItem(item))
}

// ResolveAuthorIDs maps candidates to author ids, creating missing authors.
// Candidates without both name parts, and candidates whose creation fails
// without a recoverable duplicate, are skipped, so the result can be
// shorter than the input. Order follows the input.
func ResolveAuthorIDs(ctx context.Context, store AuthorStore, authors []candidate.AuthorCandidate) []string {
	ids := make([]string, 0, len(authors))
	for _, a := range authors {
		if !a.Resolvable() {
			continue
		}
		id, ok := resolveAuthor(ctx, store, a)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func resolveAuthor(ctx context.Context, store AuthorStore, a candidate.AuthorCandidate) (string, bool) {
	existing, err := store.FindAuthorByExactName(ctx, a.FirstName, a.LastName)
	if err == nil {
		return existing.ID, true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("author lookup failed", "first_name", a.FirstName, "last_name", a.LastName, "error", err)
		return "", false
	}

	created, err := store.CreateAuthor(ctx, a.FirstName, a.LastName)
	if err == nil {
		return created.ID, true
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		slog.Warn("creating author failed", "first_name", a.FirstName, "last_name", a.LastName, "error", err)
		return "", false
	}

	// Someone else created it between lookup and insert
	existing, err = store.FindAuthorByExactName(ctx, a.FirstName, a.LastName)
	if err != nil {
		slog.Warn("author vanished after duplicate", "first_name", a.FirstName, "last_name", a.LastName, "error", err)
		return "", false
	}
	return existing.ID, true
}
