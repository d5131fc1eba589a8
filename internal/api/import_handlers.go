package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
	"github.com/justyntemme/biblio/internal/search"
	"github.com/justyntemme/biblio/internal/storage"
)

// Imports are two-phase: without confirm the built candidate is returned
// and nothing is written; with confirm the write happens.

// itemRef names a stored search result by session or by job
type itemRef struct {
	SessionID string `json:"sessionId"`
	SearchID  string `json:"searchId"`
	ItemID    string `json:"itemId"`
}

func (r itemRef) empty() bool {
	return strings.TrimSpace(r.ItemID) == ""
}

// lookupItem resolves a reference, preferring the job when both ids are set
func (h *Handler) lookupItem(r itemRef) (candidate.Item, bool) {
	if r.SearchID != "" {
		return h.jobs.Item(r.SearchID, r.ItemID)
	}
	return h.search.GetResultItem(r.SessionID, r.ItemID)
}

type importAuthorRequest struct {
	itemRef
	AuthorIndex int                    `json:"authorIndex"`
	Author      *candidate.AuthorInput `json:"author"`
	Confirm     bool                   `json:"confirm"`
}

// ImportAuthor previews or creates an author from a search item or from
// raw author data. An existing author with the same name is reused.
func (h *Handler) ImportAuthor(c *gin.Context) {
	var req importAuthorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var cand candidate.AuthorCandidate
	switch {
	case req.Author != nil:
		cand = candidate.NewAuthorCandidate(*req.Author)
	case !req.empty():
		item, ok := h.lookupItem(req.itemRef)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		var hasAuthor bool
		cand, hasAuthor = search.BuildAuthorCandidateFromItem(item, req.AuthorIndex)
		if !hasAuthor {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Item has no author at that index"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either author or itemId is required"})
		return
	}

	ctx := c.Request.Context()
	var existing *models.Author
	if cand.Resolvable() {
		a, err := h.db.FindAuthorByExactName(ctx, cand.FirstName, cand.LastName)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			respondError(c, err, "Failed to look up author")
			return
		}
		existing = a
	}

	if !req.Confirm {
		c.JSON(http.StatusOK, gin.H{"confirmed": false, "candidate": cand, "existing": existing})
		return
	}

	if !cand.Resolvable() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Author needs a first and a last name", "candidate": cand})
		return
	}
	ids := h.search.ResolveAuthorIDs(ctx, []candidate.AuthorCandidate{cand})
	if len(ids) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Author could not be created", "code": codeNoAuthors, "candidate": cand})
		return
	}
	author, err := h.db.GetAuthor(ctx, ids[0])
	if err != nil {
		respondError(c, err, "Failed to fetch author")
		return
	}

	status := http.StatusCreated
	if existing != nil {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"confirmed": true, "candidate": cand, "author": author, "created": existing == nil})
}

type importBookRequest struct {
	itemRef
	Book    *candidate.BookInput `json:"book"`
	ListIDs []string             `json:"listIds"`
	TagIDs  []string             `json:"tagIds"`
	Confirm bool                 `json:"confirm"`
}

// ImportBook previews or creates a book from a search item or from raw book
// data. The preview lists library books the import may duplicate. A book
// is only written when at least one of its authors resolves.
func (h *Handler) ImportBook(c *gin.Context) {
	var req importBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var cand candidate.BookCandidate
	var publisher string
	switch {
	case req.Book != nil:
		cand = candidate.NewBookCandidate(*req.Book)
	case !req.empty():
		item, ok := h.lookupItem(req.itemRef)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		cand = search.BuildBookCandidateFromItem(item)
		publisher = item.Publisher
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either book or itemId is required"})
		return
	}

	if cand.Title == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Book title is required", "candidate": cand})
		return
	}

	ctx := c.Request.Context()
	dups, err := h.db.CheckForDuplicate(ctx, cand.Title, cand.ISBN)
	if err != nil {
		respondError(c, err, "Failed to check for duplicates")
		return
	}

	if !req.Confirm {
		c.JSON(http.StatusOK, gin.H{"confirmed": false, "candidate": cand, "duplicates": dups})
		return
	}

	authorIDs := h.search.ResolveAuthorIDs(ctx, cand.Authors)
	if len(authorIDs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "None of the book's authors could be resolved",
			"code":      codeNoAuthors,
			"candidate": cand,
		})
		return
	}

	book, err := h.db.CreateBook(ctx, models.NewBook{
		Title:     cand.Title,
		ISBN:      cand.ISBN,
		Year:      cand.Year,
		Publisher: publisher,
		AuthorIDs: authorIDs,
		ListIDs:   req.ListIDs,
		TagIDs:    req.TagIDs,
	})
	if err != nil {
		respondError(c, err, "Failed to create book")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"confirmed":      true,
		"candidate":      cand,
		"book":           book,
		"authorIds":      authorIDs,
		"skippedAuthors": len(cand.Authors) - len(authorIDs),
		"duplicateOf":    dups.Duplicates,
	})
}
