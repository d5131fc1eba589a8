package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/search"
)

// coverScanResponse is a seeded search session plus the scanned item
type coverScanResponse struct {
	*search.Response
	Item candidate.Item `json:"item"`
}

// ScanCover reads a cover photo, PDF or comic archive from the "file" form
// field and opens a search session seeded with the recognized book.
func (h *Handler) ScanCover(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Cover scanning is not enabled"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}

	ctx := c.Request.Context()
	item, err := h.scanner.Scan(ctx, header.Filename, data)
	if err != nil {
		respondError(c, err, "Cover scan failed")
		return
	}

	resp, err := h.search.SeedWithItem(ctx, item)
	if err != nil {
		respondError(c, err, "Failed to open search session")
		return
	}
	c.JSON(http.StatusOK, coverScanResponse{Response: resp, Item: item})
}
