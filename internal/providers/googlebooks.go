package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/justyntemme/biblio/internal/candidate"
)

const googleBooksPageSize = 20

// Options configures an adapter. Zero values select the defaults.
type Options struct {
	Client  Doer
	BaseURL string
	Timeout time.Duration
}

// GoogleBooksProvider implements the Provider interface for the Google Books API
type GoogleBooksProvider struct {
	client  Doer
	baseURL string
	timeout time.Duration
	keys    KeySource
}

// Compile-time check that GoogleBooksProvider implements Provider
var _ Provider = (*GoogleBooksProvider)(nil)

// NewGoogleBooksProvider creates a Google Books provider. The API key is
// looked up on every call so key changes apply without a restart.
func NewGoogleBooksProvider(keys KeySource, opts Options) *GoogleBooksProvider {
	p := &GoogleBooksProvider{
		client:  opts.Client,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		keys:    keys,
	}
	if p.client == nil {
		p.client = newHTTPClient()
	}
	if p.baseURL == "" {
		p.baseURL = "https://www.googleapis.com/books/v1"
	}
	return p
}

// Name returns the provider identifier
func (p *GoogleBooksProvider) Name() candidate.Source {
	return candidate.SourceGoogleBooks
}

// PageSize returns the records requested per page
func (p *GoogleBooksProvider) PageSize() int {
	return googleBooksPageSize
}

// gbResponse matches the volumes search response
type gbResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []gbItem `json:"items"`
}

type gbItem struct {
	ID         string       `json:"id"`
	VolumeInfo gbVolumeInfo `json:"volumeInfo"`
}

type gbVolumeInfo struct {
	Title               string         `json:"title"`
	Subtitle            string         `json:"subtitle"`
	Authors             []string       `json:"authors"`
	Publisher           string         `json:"publisher"`
	PublishedDate       string         `json:"publishedDate"`
	IndustryIdentifiers []gbIdentifier `json:"industryIdentifiers"`
	Language            string         `json:"language"`
}

type gbIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// FetchPage searches volumes by title starting at offset
func (p *GoogleBooksProvider) FetchPage(ctx context.Context, title string, offset int) (*Page, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return emptyPage(googleBooksPageSize, offset), nil
	}

	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", "intitle:"+title)
	params.Set("startIndex", strconv.Itoa(offset))
	params.Set("maxResults", strconv.Itoa(googleBooksPageSize))
	params.Set("printType", "books")
	params.Set("key", apiKey)
	requestURL := fmt.Sprintf("%s/volumes?%s", p.baseURL, params.Encode())

	resp, err := get(ctx, p.client, request{
		provider:   string(p.Name()),
		failCode:   CodeGoogleBooksError,
		statusCode: CodeGoogleBooksError,
		url:        requestURL,
		accept:     "application/json",
		timeout:    p.timeout,
	})
	if err != nil {
		return nil, err
	}

	var data gbResponse
	if err := json.Unmarshal(resp.body, &data); err != nil {
		return nil, &Error{
			Code:        CodeGoogleBooksError,
			Provider:    string(p.Name()),
			Message:     "decoding response",
			BodySnippet: snippet(resp.body),
			RequestURL:  RedactURL(requestURL),
			Err:         err,
		}
	}

	items := make([]candidate.Item, 0, len(data.Items))
	for _, it := range data.Items {
		if item, ok := p.convertItem(it); ok {
			items = append(items, item)
		}
	}

	return &Page{
		Items:      items,
		Returned:   len(data.Items),
		Total:      data.TotalItems,
		RequestURL: RedactURL(requestURL),
		Status:     resp.status,
		Limit:      googleBooksPageSize,
		Offset:     offset,
	}, nil
}

// apiKey returns the configured key or a key-missing error without any
// network call
func (p *GoogleBooksProvider) apiKey(ctx context.Context) (string, error) {
	var key string
	if p.keys != nil {
		k, err := p.keys.APIKey(ctx, string(p.Name()))
		if err != nil {
			return "", &Error{Code: CodeGoogleBooksKeyMissing, Provider: string(p.Name()), Message: "looking up API key", Err: err}
		}
		key = strings.TrimSpace(k)
	}
	if key == "" {
		return "", &Error{Code: CodeGoogleBooksKeyMissing, Provider: string(p.Name()), Message: "Google Books API key not configured"}
	}
	return key, nil
}

// convertItem maps one volume; volumes without a title are dropped
func (p *GoogleBooksProvider) convertItem(it gbItem) (candidate.Item, bool) {
	vol := it.VolumeInfo
	if strings.TrimSpace(vol.Title) == "" {
		return candidate.Item{}, false
	}

	return candidate.NewItem(candidate.ItemFields{
		Title:      vol.Title,
		Authors:    candidate.NormalizeAuthors(vol.Authors),
		ISBN:       pickGoogleISBN(vol.IndustryIdentifiers),
		Year:       extractYear(vol.PublishedDate),
		Publisher:  vol.Publisher,
		ExternalID: it.ID,
		Source:     p.Name(),
		RawPayload: map[string]any{
			"volumeId":      it.ID,
			"subtitle":      vol.Subtitle,
			"publishedDate": vol.PublishedDate,
			"language":      vol.Language,
		},
	}), true
}

// pickGoogleISBN prefers ISBN_13, then ISBN_10, then the first identifier
func pickGoogleISBN(ids []gbIdentifier) string {
	for _, want := range []string{"ISBN_13", "ISBN_10"} {
		for _, id := range ids {
			if id.Type == want && id.Identifier != "" {
				return id.Identifier
			}
		}
	}
	if len(ids) > 0 {
		return ids[0].Identifier
	}
	return ""
}
