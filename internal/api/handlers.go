package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/coverscan"
	"github.com/justyntemme/biblio/internal/jobs"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/search"
	"github.com/justyntemme/biblio/internal/storage"
)

// DefaultMaxUpload bounds cover scan uploads when Options leaves it zero
const DefaultMaxUpload = 50 * 1024 * 1024

// Options holds optional handler dependencies
type Options struct {
	Scanner        *coverscan.Scanner
	MaxUploadBytes int64
}

// Handler contains all HTTP handlers
type Handler struct {
	db        *storage.Database
	keys      *storage.KeyStore
	search    *search.Service
	jobs      *jobs.Manager
	scanner   *coverscan.Scanner
	maxUpload int64
}

// NewHandler creates a new handler instance
func NewHandler(db *storage.Database, keys *storage.KeyStore, svc *search.Service, mgr *jobs.Manager, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUpload
	}
	return &Handler{
		db:        db,
		keys:      keys,
		search:    svc,
		jobs:      mgr,
		scanner:   opts.Scanner,
		maxUpload: opts.MaxUploadBytes,
	}
}

// HealthCheck returns server health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

// Error codes for failures that are not provider errors
const (
	codeUnknownProvider = "UNKNOWN_PROVIDER"
	codeTooManyJobs     = "TOO_MANY_JOBS"
	codeNoAuthors       = "NO_AUTHORS_RESOLVED"
)

// respondError maps core errors to status codes. Unknown errors are logged
// and reported as 500 with fallback as message.
func respondError(c *gin.Context, err error, fallback string) {
	var pe *providers.Error
	switch {
	case errors.As(err, &pe):
		c.JSON(providerStatus(pe.Code), gin.H{"error": pe.Message, "code": pe.Code, "provider": pe.Provider})
	case errors.Is(err, search.ErrNoTitle):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
	case errors.Is(err, search.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeUnknownProvider})
	case errors.Is(err, jobs.ErrTooManyJobs):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many search jobs running, try again later", "code": codeTooManyJobs})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, storage.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Already exists"})
	case errors.Is(err, storage.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Referenced list, tag or author does not exist"})
	default:
		slog.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func providerStatus(code string) int {
	switch code {
	case providers.CodeGoogleBooksKeyMissing, coverscan.CodeKeyMissing:
		return http.StatusBadRequest
	case coverscan.CodeUnsupported:
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadGateway
}

// keyNames are the API keys the settings endpoints manage
var keyNames = []string{string(candidate.SourceGoogleBooks), coverscan.KeyName}

// ListAPIKeys reports which API keys are configured, never the keys
func (h *Handler) ListAPIKeys(c *gin.Context) {
	configured := make(map[string]bool, len(keyNames))
	for _, name := range keyNames {
		configured[name] = h.keys.HasAPIKey(c.Request.Context(), name)
	}
	c.JSON(http.StatusOK, gin.H{"keys": configured})
}

// SetAPIKey saves the key for a provider. An empty key removes the saved
// key and falls back to configuration.
func (h *Handler) SetAPIKey(c *gin.Context) {
	provider := c.Param("provider")
	if !slices.Contains(keyNames, provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown key name", "code": codeUnknownProvider})
		return
	}

	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.keys.SetAPIKey(c.Request.Context(), provider, strings.TrimSpace(req.APIKey)); err != nil {
		respondError(c, err, "Failed to save API key")
		return
	}

	slog.Info("api key updated", "provider", provider, "cleared", req.APIKey == "")
	c.JSON(http.StatusOK, gin.H{
		"provider":   provider,
		"configured": h.keys.HasAPIKey(c.Request.Context(), provider),
	})
}
