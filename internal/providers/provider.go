// Package providers adapts external bibliographic APIs (Google Books, Open
// Library, DNB) to the canonical candidate item shape. Each adapter fetches
// exactly one page per call; paging is driven by the caller.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/justyntemme/biblio/internal/candidate"
)

// Error codes reported by adapters
const (
	CodeGoogleBooksError      = "GOOGLE_BOOKS_ERROR"
	CodeGoogleBooksKeyMissing = "GOOGLE_BOOKS_KEY_MISSING"
	CodeOpenLibraryError      = "OPEN_LIBRARY_ERROR"
	CodeDNBError              = "DNB_ERROR"
	CodeDNBUnavailable        = "DNB_UNAVAILABLE"
	CodeDNBBadResponse        = "DNB_BAD_RESPONSE"
)

// bodySnippetLimit bounds how much of an error body is kept for diagnostics
const bodySnippetLimit = 500

// Doer performs HTTP requests. *http.Client satisfies it; tests inject
// their own to avoid real network calls.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeySource resolves API keys by provider name. An empty key with a nil
// error means "not configured".
type KeySource interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// Page is one page of results from a provider.
type Page struct {
	Items      []candidate.Item `json:"items"`
	Returned   int              `json:"returned"` // raw records in the response, before title filtering
	Total      int              `json:"totalItems"`
	TotalKnown bool             `json:"-"` // Total is reliable enough to stop paging on
	RequestURL string           `json:"requestUrl"`
	Status     int              `json:"status"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// Provider is the capability every adapter exposes.
type Provider interface {
	// Name returns the source tag of the provider
	Name() candidate.Source

	// PageSize is the fixed number of records requested per page
	PageSize() int

	// FetchPage fetches the page starting at the zero-based record offset
	FetchPage(ctx context.Context, title string, offset int) (*Page, error)
}

// Error is a provider failure with diagnostics.
type Error struct {
	Code        string `json:"code"`
	Provider    string `json:"provider"`
	Message     string `json:"message"`
	Status      int    `json:"status,omitempty"`
	StatusText  string `json:"statusText,omitempty"`
	BodySnippet string `json:"bodySnippet,omitempty"`
	RequestURL  string `json:"requestUrl,omitempty"`
	Err         error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the provider error code carried by err, or "".
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given provider error code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsCanceled reports whether err is the caller's own cancellation rather
// than a provider failure. Deadline expiry is a failure, not a cancel.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// emptyPage is returned for blank titles without touching the network
func emptyPage(limit, offset int) *Page {
	return &Page{Items: []candidate.Item{}, Limit: limit, Offset: offset}
}
