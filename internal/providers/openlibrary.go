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

const openLibraryPageSize = 50

// OpenLibraryProvider implements the Provider interface for the Open Library search API
type OpenLibraryProvider struct {
	client  Doer
	baseURL string
	timeout time.Duration
}

var _ Provider = (*OpenLibraryProvider)(nil)

// NewOpenLibraryProvider creates a new Open Library provider
func NewOpenLibraryProvider(opts Options) *OpenLibraryProvider {
	p := &OpenLibraryProvider{
		client:  opts.Client,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}
	if p.client == nil {
		p.client = newHTTPClient()
	}
	if p.baseURL == "" {
		p.baseURL = "https://openlibrary.org"
	}
	return p
}

// Name returns the provider identifier
func (p *OpenLibraryProvider) Name() candidate.Source {
	return candidate.SourceOpenLibrary
}

func (p *OpenLibraryProvider) PageSize() int {
	return openLibraryPageSize
}

// olSearchResponse represents an Open Library search response
type olSearchResponse struct {
	NumFound int           `json:"numFound"`
	Start    int           `json:"start"`
	Docs     []olSearchDoc `json:"docs"`
}

// olSearchDoc represents a document in search results
type olSearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	Publisher        []string `json:"publisher"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	CoverI           int      `json:"cover_i"`
	EditionCount     int      `json:"edition_count"`
}

// FetchPage searches by title. Open Library pages are 1-based, so offset
// is converted to the page containing it.
func (p *OpenLibraryProvider) FetchPage(ctx context.Context, title string, offset int) (*Page, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return emptyPage(openLibraryPageSize, offset), nil
	}

	params := url.Values{}
	params.Set("title", title)
	params.Set("page", strconv.Itoa(offset/openLibraryPageSize+1))
	params.Set("limit", strconv.Itoa(openLibraryPageSize))
	params.Set("fields", "key,title,author_name,publisher,first_publish_year,isbn,cover_i,edition_count")
	requestURL := fmt.Sprintf("%s/search.json?%s", p.baseURL, params.Encode())

	resp, err := get(ctx, p.client, request{
		provider:   string(p.Name()),
		failCode:   CodeOpenLibraryError,
		statusCode: CodeOpenLibraryError,
		url:        requestURL,
		accept:     "application/json",
		timeout:    p.timeout,
	})
	if err != nil {
		return nil, err
	}

	var data olSearchResponse
	if err := json.Unmarshal(resp.body, &data); err != nil {
		return nil, &Error{
			Code:        CodeOpenLibraryError,
			Provider:    string(p.Name()),
			Message:     "decoding response",
			BodySnippet: snippet(resp.body),
			RequestURL:  requestURL,
			Err:         err,
		}
	}

	items := make([]candidate.Item, 0, len(data.Docs))
	for i := range data.Docs {
		doc := &data.Docs[i]
		if strings.TrimSpace(doc.Title) == "" {
			continue
		}
		items = append(items, p.convertSearchDoc(doc))
	}

	return &Page{
		Items:      items,
		Returned:   len(data.Docs),
		Total:      data.NumFound,
		TotalKnown: true,
		RequestURL: requestURL,
		Status:     resp.status,
		Limit:      openLibraryPageSize,
		Offset:     offset,
	}, nil
}

// convertSearchDoc converts a search document to a candidate item
func (p *OpenLibraryProvider) convertSearchDoc(doc *olSearchDoc) candidate.Item {
	raw := map[string]any{
		"key":          doc.Key,
		"editionCount": doc.EditionCount,
	}
	if doc.CoverI > 0 {
		raw["coverUrl"] = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", doc.CoverI)
	}

	return candidate.NewItem(candidate.ItemFields{
		Title:      doc.Title,
		Authors:    candidate.NormalizeAuthors(doc.AuthorName),
		ISBN:       firstOrEmpty(doc.ISBN),
		Year:       doc.FirstPublishYear,
		Publisher:  firstOrEmpty(doc.Publisher),
		ExternalID: doc.Key,
		Source:     p.Name(),
		RawPayload: raw,
	})
}
