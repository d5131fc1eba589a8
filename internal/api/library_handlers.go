package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
)

// ListAuthors returns all authors
func (h *Handler) ListAuthors(c *gin.Context) {
	authors, err := h.db.ListAuthors(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch authors")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors, "count": len(authors)})
}

// CreateAuthor adds an author. The body is either a structured name or a
// single "First Last" string.
func (h *Handler) CreateAuthor(c *gin.Context) {
	var in candidate.AuthorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	a := candidate.NewAuthorCandidate(in)
	if !a.Resolvable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Author needs a first and a last name"})
		return
	}

	author, err := h.db.CreateAuthor(c.Request.Context(), a.FirstName, a.LastName)
	if err != nil {
		respondError(c, err, "Failed to create author")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Author created", "author": author})
}

// GetAuthor returns a single author by ID
func (h *Handler) GetAuthor(c *gin.Context) {
	author, err := h.db.GetAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch author")
		return
	}
	c.JSON(http.StatusOK, author)
}

// ListBooks returns all books, or the books whose title contains every
// word of ?search=
func (h *Handler) ListBooks(c *gin.Context) {
	var books []models.Book
	var err error

	if q := strings.TrimSpace(c.Query("search")); q != "" {
		books, err = h.db.SearchBooksByTitleTokens(c.Request.Context(), candidate.Tokenize(candidate.NormalizeTitle(q)))
	} else {
		books, err = h.db.ListBooks(c.Request.Context())
	}
	if err != nil {
		respondError(c, err, "Failed to fetch books")
		return
	}
	if books == nil {
		books = []models.Book{}
	}

	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

// GetBook returns a single book by ID
func (h *Handler) GetBook(c *gin.Context) {
	book, err := h.db.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// DeleteBook removes a book from the library
func (h *Handler) DeleteBook(c *gin.Context) {
	id := c.Param("id")

	book, err := h.db.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch book")
		return
	}
	if err := h.db.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete book")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Book deleted", "book": book})
}

// ListLists returns all lists
func (h *Handler) ListLists(c *gin.Context) {
	lists, err := h.db.ListLists(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch lists")
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": lists, "count": len(lists)})
}

// CreateList creates a new list
func (h *Handler) CreateList(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	list, err := h.db.CreateList(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		respondError(c, err, "Failed to create list")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "List created", "list": list})
}

// ListTags returns all tags
func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.db.ListTags(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch tags")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "count": len(tags)})
}

// CreateTag creates a new tag
func (h *Handler) CreateTag(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	tag, err := h.db.CreateTag(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err, "Failed to create tag")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Tag created", "tag": tag})
}
