package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/search"
)

// maxWait caps long-polling on job status
const maxWait = 30 * time.Second

// LocalSearch searches the library and opens a search session
func (h *Handler) LocalSearch(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.search.RunLocalSearch(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, err, "Local search failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ExternalSearch runs one synchronous round against the external providers.
// The session's external results are replaced, not extended.
func (h *Handler) ExternalSearch(c *gin.Context) {
	var req search.ExternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.search.RunExternalSearch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "External search failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession returns the combined results of a search session
func (h *Handler) GetSession(c *gin.Context) {
	resp, ok := h.search.GetSearchResults(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search session not found or expired"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSessionItem returns one item of a search session
func (h *Handler) GetSessionItem(c *gin.Context) {
	item, ok := h.search.GetResultItem(c.Param("id"), c.Param("itemId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

// StartJob starts an asynchronous paging search. It answers before any
// provider is queried; results are appended to the job's session as pages
// arrive.
func (h *Handler) StartJob(c *gin.Context) {
	var req struct {
		Title     string             `json:"title"`
		Providers []candidate.Source `json:"providers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	st, err := h.jobs.Start(c.Request.Context(), req.Title, req.Providers)
	if err != nil {
		respondError(c, err, "Failed to start search job")
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// GetJob returns a job's status. With ?wait=<duration> it blocks until the
// job finishes or the duration passes.
func (h *Handler) GetJob(c *gin.Context) {
	var wait time.Duration
	if w := c.Query("wait"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wait duration"})
			return
		}
		wait = min(d, maxWait)
	}

	st, ok := h.jobs.Wait(c.Request.Context(), c.Param("id"), wait)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search job not found or expired"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// CancelJob stops a job. Cancelling a finished job returns its status
// unchanged.
func (h *Handler) CancelJob(c *gin.Context) {
	st, ok := h.jobs.Cancel(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search job not found or expired"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetJobItem returns one item of a job
func (h *Handler) GetJobItem(c *gin.Context) {
	item, ok := h.jobs.Item(c.Param("id"), c.Param("itemId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}
