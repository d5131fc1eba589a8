package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/models"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/providers/providertest"
	"github.com/justyntemme/biblio/internal/session"
	"github.com/justyntemme/biblio/internal/storage"
)

// MockBooks is a mock implementation of BookFinder
type MockBooks struct {
	mock.Mock
}

func (m *MockBooks) SearchBooksByTitleTokens(ctx context.Context, tokens []string) ([]models.Book, error) {
	args := m.Called(tokens)
	return args.Get(0).([]models.Book), args.Error(1)
}

// MockAuthors is a mock implementation of AuthorStore
type MockAuthors struct {
	mock.Mock
}

func (m *MockAuthors) FindAuthorByExactName(ctx context.Context, first, last string) (*models.Author, error) {
	args := m.Called(first, last)
	author, _ := args.Get(0).(*models.Author)
	return author, args.Error(1)
}

func (m *MockAuthors) CreateAuthor(ctx context.Context, first, last string) (*models.Author, error) {
	args := m.Called(first, last)
	author, _ := args.Get(0).(*models.Author)
	return author, args.Error(1)
}

func newTestService(books BookFinder, provs ...providers.Provider) *Service {
	return NewService(NewLocalSearcher(books), session.NewMemoryStore(time.Minute, 10), provs, &MockAuthors{})
}

func TestRunLocalSearchNoMatches(t *testing.T) {
	books := &MockBooks{}
	books.On("SearchBooksByTitleTokens", []string{"xyzzynomatch12345"}).Return([]models.Book{}, nil)

	svc := newTestService(books)
	resp, err := svc.RunLocalSearch(context.Background(), "Xyzzynomatch12345")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Empty(t, resp.Items)
	assert.NotNil(t, resp.Items)
	assert.Equal(t, map[candidate.Source]int{}, resp.Counts)

	_, ok := svc.GetSearchResults(resp.SessionID)
	assert.True(t, ok, "session is created even without hits")
	books.AssertExpectations(t)
}

func TestRunLocalSearchEmptyTitleSkipsStore(t *testing.T) {
	books := &MockBooks{}
	svc := newTestService(books)

	resp, err := svc.RunLocalSearch(context.Background(), " ?! ")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	books.AssertNotCalled(t, "SearchBooksByTitleTokens", mock.Anything)
}

func TestRunLocalSearchMapsBooks(t *testing.T) {
	books := &MockBooks{}
	books.On("SearchBooksByTitleTokens", []string{"dune"}).Return([]models.Book{{
		ID:      "book-1",
		Title:   "Dune",
		ISBN:    "9780441013593",
		Year:    1965,
		Authors: []models.Author{{ID: "a1", FirstName: "Frank", LastName: "Herbert"}},
	}}, nil)

	svc := newTestService(books)
	resp, err := svc.RunLocalSearch(context.Background(), "Dune")
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	item := resp.Items[0]
	assert.Equal(t, candidate.SourceLocal, item.Source)
	assert.Equal(t, "book-1", item.RawPayload["bookId"])
	assert.Equal(t, "Frank Herbert", item.Authors[0].FullName)
	assert.Equal(t, map[candidate.Source]int{candidate.SourceLocal: 1}, resp.Counts)
}

func TestRunLocalSearchStoreError(t *testing.T) {
	books := &MockBooks{}
	books.On("SearchBooksByTitleTokens", mock.Anything).Return([]models.Book{}, errors.New("disk on fire"))

	svc := newTestService(books)
	_, err := svc.RunLocalSearch(context.Background(), "Dune")
	assert.ErrorContains(t, err, "disk on fire")
}

func emptyBooks() *MockBooks {
	books := &MockBooks{}
	books.On("SearchBooksByTitleTokens", mock.Anything).Return([]models.Book{}, nil)
	return books
}

func TestRunExternalSearchReplacesAndDedups(t *testing.T) {
	gb := providertest.Fixed(candidate.SourceGoogleBooks, providertest.Items(candidate.SourceGoogleBooks, "Frank Herbert", "Dune", "Dune Messiah"))
	ol := providertest.Fixed(candidate.SourceOpenLibrary, providertest.Items(candidate.SourceOpenLibrary, "frank herbert", "DUNE"))
	svc := newTestService(emptyBooks(), gb, ol)
	ctx := context.Background()

	local, err := svc.RunLocalSearch(ctx, "Dune")
	require.NoError(t, err)

	first, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID})
	require.NoError(t, err)
	assert.Equal(t, local.SessionID, first.SessionID)
	require.Len(t, first.Items, 2, "open library's Dune duplicates google's")
	assert.Equal(t, candidate.SourceGoogleBooks, first.Items[0].Source)
	assert.Equal(t, session.StatusOK, first.ProviderStatus["google_books"].Status)
	assert.Equal(t, 2, first.ProviderStatus["google_books"].Count)
	assert.Equal(t, 1, first.ProviderStatus["open_library"].Count)

	second, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID})
	require.NoError(t, err)
	assert.Len(t, second.Items, len(first.Items), "repeated rounds do not accumulate")
}

func TestRunExternalSearchProviderFailureIsolated(t *testing.T) {
	gb := providertest.Fixed(candidate.SourceGoogleBooks, providertest.Items(candidate.SourceGoogleBooks, "Frank Herbert", "Dune"))
	dnb := providertest.Failing(candidate.SourceDNB, &providers.Error{Code: providers.CodeDNBUnavailable, Status: 503})
	other := providertest.Failing(candidate.SourceOpenLibrary, errors.New("weird"))
	svc := newTestService(emptyBooks(), gb, dnb, other)

	resp, err := svc.RunExternalSearch(context.Background(), ExternalRequest{Title: "Dune"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Len(t, resp.Items, 1)

	status := resp.ProviderStatus["dnb"]
	assert.Equal(t, session.StatusError, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, providers.CodeDNBUnavailable, status.Error.Code)
	assert.Equal(t, 503, status.Error.Status)

	assert.Equal(t, CodeProviderError, resp.ProviderStatus["open_library"].Error.Code)
}

func TestRunExternalSearchGoogleKeyMissing(t *testing.T) {
	keyMissing := &providers.Error{Code: providers.CodeGoogleBooksKeyMissing, Provider: "google_books"}
	gb := providertest.Failing(candidate.SourceGoogleBooks, keyMissing)
	dnb := providertest.Fixed(candidate.SourceDNB, providertest.Items(candidate.SourceDNB, "Frank Herbert", "Dune"))
	svc := newTestService(emptyBooks(), gb, dnb)
	ctx := context.Background()

	local, err := svc.RunLocalSearch(ctx, "Dune")
	require.NoError(t, err)
	_, err = svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID, Providers: []candidate.Source{candidate.SourceDNB}})
	require.NoError(t, err)

	// explicitly requested: the whole call fails
	_, err = svc.RunExternalSearch(ctx, ExternalRequest{
		SessionID: local.SessionID,
		Providers: []candidate.Source{candidate.SourceGoogleBooks},
	})
	require.Error(t, err)
	assert.True(t, providers.IsCode(err, providers.CodeGoogleBooksKeyMissing))

	after, ok := svc.GetSearchResults(local.SessionID)
	require.True(t, ok)
	require.Len(t, after.Items, 1, "existing external items are untouched")
	assert.Equal(t, candidate.SourceDNB, after.Items[0].Source)

	// default provider set: recorded per provider
	resp, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID})
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, resp.ProviderStatus["google_books"].Status)
	assert.Equal(t, providers.CodeGoogleBooksKeyMissing, resp.ProviderStatus["google_books"].Error.Code)
	assert.Equal(t, session.StatusOK, resp.ProviderStatus["dnb"].Status)
}

func TestRunExternalSearchTitleMismatchStartsFresh(t *testing.T) {
	dnb := providertest.Fixed(candidate.SourceDNB, nil)
	books := emptyBooks()
	svc := newTestService(books, dnb)
	ctx := context.Background()

	local, err := svc.RunLocalSearch(ctx, "Dune")
	require.NoError(t, err)

	same, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID, Title: "DUNE!"})
	require.NoError(t, err)
	assert.Equal(t, local.SessionID, same.SessionID, "equal after normalization")

	fresh, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: local.SessionID, Title: "Neuromancer"})
	require.NoError(t, err)
	assert.NotEqual(t, local.SessionID, fresh.SessionID)
	assert.Equal(t, "neuromancer", fresh.Query.NormalizedTitle)

	_, ok := svc.GetSearchResults(local.SessionID)
	assert.False(t, ok, "the mismatched session is discarded")
}

func TestRunExternalSearchValidation(t *testing.T) {
	svc := newTestService(emptyBooks(), providertest.Fixed(candidate.SourceDNB, nil))
	ctx := context.Background()

	_, err := svc.RunExternalSearch(ctx, ExternalRequest{SessionID: "gone"})
	assert.ErrorIs(t, err, ErrNoTitle)

	_, err = svc.RunExternalSearch(ctx, ExternalRequest{Title: "Dune", Providers: []candidate.Source{"amazon"}})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = svc.RunExternalSearch(ctx, ExternalRequest{Title: "Dune", Providers: []candidate.Source{candidate.SourceGoogleBooks}})
	assert.ErrorIs(t, err, ErrUnknownProvider, "known but not configured")
}

func TestGetResultItem(t *testing.T) {
	dnb := providertest.Fixed(candidate.SourceDNB, providertest.Items(candidate.SourceDNB, "Frank Herbert", "Dune"))
	svc := newTestService(emptyBooks(), dnb)

	resp, err := svc.RunExternalSearch(context.Background(), ExternalRequest{Title: "Dune"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)

	item, ok := svc.GetResultItem(resp.SessionID, resp.Items[0].ItemID)
	require.True(t, ok)
	assert.Equal(t, "Dune", item.Title)

	_, ok = svc.GetResultItem(resp.SessionID, "nope")
	assert.False(t, ok)
	_, ok = svc.GetResultItem("nope", resp.Items[0].ItemID)
	assert.False(t, ok)
}

func TestSeedWithItem(t *testing.T) {
	svc := newTestService(emptyBooks())
	scanned := candidate.NewItem(candidate.ItemFields{Title: "Dune", Source: candidate.SourceCoverScan})

	resp, err := svc.SeedWithItem(context.Background(), scanned)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, scanned.ItemID, resp.Items[0].ItemID)
	assert.Equal(t, 1, resp.Counts[candidate.SourceCoverScan])
	assert.Equal(t, session.StatusOK, resp.ProviderStatus["cover_scan"].Status)
}

func TestBuildCandidatesFromItem(t *testing.T) {
	item := candidate.NewItem(candidate.ItemFields{
		Title: "Good Omens",
		Authors: []candidate.AuthorRef{
			{FirstName: "Terry", LastName: "Pratchett"},
			{FirstName: "Neil", LastName: "Gaiman"},
		},
		ISBN:   "9780060853983",
		Year:   1990,
		Source: candidate.SourceOpenLibrary,
	})

	author, ok := BuildAuthorCandidateFromItem(item, 1)
	require.True(t, ok)
	assert.Equal(t, "Neil", author.FirstName)
	assert.Equal(t, "Gaiman", author.LastName)

	_, ok = BuildAuthorCandidateFromItem(item, 2)
	assert.False(t, ok)
	_, ok = BuildAuthorCandidateFromItem(candidate.Item{Title: "x"}, 0)
	assert.False(t, ok)

	book := BuildBookCandidateFromItem(item)
	assert.Equal(t, "Good Omens", book.Title)
	assert.Equal(t, 1990, book.Year)
	require.Len(t, book.Authors, 2)
	assert.Equal(t, "Pratchett", book.Authors[0].LastName)
}

func TestResolveAuthorIDs(t *testing.T) {
	authors := &MockAuthors{}

	// existing
	authors.On("FindAuthorByExactName", "Thomas", "Mann").Return(&models.Author{ID: "mann"}, nil)

	// created
	authors.On("FindAuthorByExactName", "Neil", "Gaiman").Return(nil, storage.ErrNotFound)
	authors.On("CreateAuthor", "Neil", "Gaiman").Return(&models.Author{ID: "gaiman"}, nil)

	// duplicate race: the second lookup finds the winner's row
	authors.On("FindAuthorByExactName", "Terry", "Pratchett").Return(nil, storage.ErrNotFound).Once()
	authors.On("CreateAuthor", "Terry", "Pratchett").Return(nil, storage.ErrDuplicate)
	authors.On("FindAuthorByExactName", "Terry", "Pratchett").Return(&models.Author{ID: "pratchett"}, nil).Once()

	// creation fails outright
	authors.On("FindAuthorByExactName", "Broken", "Writer").Return(nil, storage.ErrNotFound)
	authors.On("CreateAuthor", "Broken", "Writer").Return(nil, errors.New("disk full"))

	ids := ResolveAuthorIDs(context.Background(), authors, []candidate.AuthorCandidate{
		{FirstName: "Thomas", LastName: "Mann"},
		{LastName: "Homer"},
		{FirstName: "Neil", LastName: "Gaiman"},
		{FirstName: "Broken", LastName: "Writer"},
		{FirstName: "Terry", LastName: "Pratchett"},
	})

	assert.Equal(t, []string{"mann", "gaiman", "pratchett"}, ids)
	authors.AssertNotCalled(t, "FindAuthorByExactName", "", "Homer")
	authors.AssertExpectations(t)
}
