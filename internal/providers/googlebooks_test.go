package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/biblio/internal/candidate"
)

type staticKeys map[string]string

func (k staticKeys) APIKey(_ context.Context, provider string) (string, error) {
	return k[provider], nil
}

const gbFixture = `{
  "totalItems": 2,
  "items": [
    {
      "id": "vol-1",
      "volumeInfo": {
        "title": "Der Zauberberg",
        "authors": ["Thomas Mann"],
        "publisher": "S. Fischer",
        "publishedDate": "1924-11-20",
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "3100481754"},
          {"type": "ISBN_13", "identifier": "9783100481752"}
        ]
      }
    },
    {
      "id": "vol-2",
      "volumeInfo": {"authors": ["Nobody"]}
    }
  ]
}`

func TestGoogleBooksFetchPage(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(gbFixture))
	}))
	defer srv.Close()

	p := NewGoogleBooksProvider(staticKeys{"google_books": "secret-key"}, Options{BaseURL: srv.URL})
	page, err := p.FetchPage(context.Background(), "Der Zauberberg", 40)
	require.NoError(t, err)

	assert.Equal(t, "intitle:Der Zauberberg", gotQuery.Get("q"))
	assert.Equal(t, "40", gotQuery.Get("startIndex"))
	assert.Equal(t, "20", gotQuery.Get("maxResults"))
	assert.Equal(t, "secret-key", gotQuery.Get("key"))

	assert.Equal(t, 2, page.Returned)
	assert.Equal(t, 2, page.Total)
	assert.False(t, page.TotalKnown)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 40, page.Offset)
	assert.NotContains(t, page.RequestURL, "secret-key")

	require.Len(t, page.Items, 1)
	item := page.Items[0]
	assert.Equal(t, "Der Zauberberg", item.Title)
	assert.Equal(t, "9783100481752", item.ISBN)
	assert.Equal(t, 1924, item.Year)
	assert.Equal(t, "S. Fischer", item.Publisher)
	assert.Equal(t, "vol-1", item.ExternalID)
	assert.Equal(t, candidate.SourceGoogleBooks, item.Source)
	require.Len(t, item.Authors, 1)
	assert.Equal(t, "Thomas", item.Authors[0].FirstName)
	assert.Equal(t, "Mann", item.Authors[0].LastName)
}

func TestGoogleBooksKeyMissing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := NewGoogleBooksProvider(staticKeys{}, Options{BaseURL: srv.URL})
	_, err := p.FetchPage(context.Background(), "anything", 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeGoogleBooksKeyMissing))
	assert.Equal(t, int32(0), calls.Load())

	// no key source at all
	p = NewGoogleBooksProvider(nil, Options{BaseURL: srv.URL})
	_, err = p.FetchPage(context.Background(), "anything", 0)
	assert.True(t, IsCode(err, CodeGoogleBooksKeyMissing))
}

func TestGoogleBooksEmptyTitle(t *testing.T) {
	p := NewGoogleBooksProvider(staticKeys{}, Options{Client: failingDoer{}})
	page, err := p.FetchPage(context.Background(), "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestGoogleBooksErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(strings.Repeat("x", 800)))
	}))
	defer srv.Close()

	p := NewGoogleBooksProvider(staticKeys{"google_books": "secret-key"}, Options{BaseURL: srv.URL})
	_, err := p.FetchPage(context.Background(), "Dune", 0)
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeGoogleBooksError, pe.Code)
	assert.Equal(t, http.StatusForbidden, pe.Status)
	assert.Equal(t, "Forbidden", pe.StatusText)
	assert.Len(t, pe.BodySnippet, 500)
	assert.Contains(t, pe.RequestURL, "key=REDACTED")
	assert.NotContains(t, pe.RequestURL, "secret-key")
}

func TestGoogleBooksTransportErrorRedacted(t *testing.T) {
	p := NewGoogleBooksProvider(staticKeys{"google_books": "secret-key"}, Options{
		BaseURL: "http://books.invalid",
		Client:  failingDoer{},
	})
	_, err := p.FetchPage(context.Background(), "Dune", 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeGoogleBooksError))
	assert.NotContains(t, err.Error(), "secret-key")
	assert.False(t, IsCanceled(err))
}

func TestGoogleBooksCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(gbFixture))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewGoogleBooksProvider(staticKeys{"google_books": "k"}, Options{BaseURL: srv.URL})
	_, err := p.FetchPage(ctx, "Dune", 0)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}

func TestPickGoogleISBN(t *testing.T) {
	tests := []struct {
		name     string
		ids      []gbIdentifier
		expected string
	}{
		{"prefers ISBN_13", []gbIdentifier{{"ISBN_10", "a"}, {"ISBN_13", "b"}}, "b"},
		{"falls back to ISBN_10", []gbIdentifier{{"OTHER", "x"}, {"ISBN_10", "a"}}, "a"},
		{"falls back to first", []gbIdentifier{{"OTHER", "x"}, {"ISSN", "y"}}, "x"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, pickGoogleISBN(tt.ids))
		})
	}
}

// failingDoer fails every request the way net/http does, echoing the URL
type failingDoer struct{}

func (failingDoer) Do(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: errors.New("connection refused")}
}
