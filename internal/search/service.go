package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/session"
)

var (
	// ErrNoTitle is returned when a search has neither a title nor a session
	ErrNoTitle = errors.New("title is required")

	// ErrUnknownProvider is returned for provider names that are not
	// external search sources
	ErrUnknownProvider = errors.New("unknown provider")
)

// CodeProviderError tags failures that did not come from an adapter
const CodeProviderError = "PROVIDER_ERROR"

// Response is the shape returned by every search entry point
type Response struct {
	SessionID      string                            `json:"sessionId"`
	Query          candidate.Query                   `json:"query"`
	Items          []candidate.Item                  `json:"items"`
	Counts         map[candidate.Source]int          `json:"counts"`
	ProviderStatus map[string]session.ProviderStatus `json:"providerStatus"`
}

// ExternalRequest asks for one round of external search. An empty
// Providers list means every configured provider.
type ExternalRequest struct {
	SessionID string             `json:"sessionId"`
	Title     string             `json:"title"`
	Providers []candidate.Source `json:"providers"`
}

// ExternalResult is the joined outcome of one provider round
type ExternalResult struct {
	Items  []candidate.Item
	Status map[string]session.ProviderStatus
	Errors map[candidate.Source]error
}

// Service orchestrates local and external searches over sessions
type Service struct {
	local     *LocalSearcher
	sessions  session.Store
	providers []providers.Provider
	authors   AuthorStore
}

// NewService creates a search service. Provider order is the order items
// are reported in.
func NewService(local *LocalSearcher, sessions session.Store, provs []providers.Provider, authors AuthorStore) *Service {
	return &Service{
		local:     local,
		sessions:  sessions,
		providers: provs,
		authors:   authors,
	}
}

// Sessions exposes the backing session store
func (s *Service) Sessions() session.Store {
	return s.sessions
}

// Local exposes the local searcher
func (s *Service) Local() *LocalSearcher {
	return s.local
}

// RunLocalSearch searches the library and opens a new session on the hits
func (s *Service) RunLocalSearch(ctx context.Context, title string) (*Response, error) {
	if purged := s.sessions.PurgeExpired(); purged > 0 {
		slog.Debug("purged expired sessions", "count", purged)
	}

	sess, err := s.startSession(ctx, title)
	if err != nil {
		return nil, err
	}
	return NewResponse(sess), nil
}

func (s *Service) startSession(ctx context.Context, title string) (*session.Session, error) {
	res, err := s.local.SearchByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.sessions.Create(res.Query, res.Items, nil), nil
}

// RunExternalSearch runs one synchronous round against the requested
// providers and replaces the session's external items and provider status
// with the outcome. Results are deduplicated among themselves, not against
// local items. Repeated calls do not accumulate.
//
// A session whose query differs from a supplied title is discarded and a
// fresh local search is run. A missing Google Books key fails the whole
// call when google_books was requested by name, leaving the session as it
// was.
func (s *Service) RunExternalSearch(ctx context.Context, req ExternalRequest) (*Response, error) {
	selected, err := s.SelectProviders(req.Providers)
	if err != nil {
		return nil, err
	}

	s.sessions.PurgeExpired()

	sess, err := s.resolveSession(ctx, req.SessionID, req.Title)
	if err != nil {
		return nil, err
	}

	result := s.searchExternal(ctx, sess.Query.Title, selected)

	if slices.Contains(req.Providers, candidate.SourceGoogleBooks) {
		if err := result.Errors[candidate.SourceGoogleBooks]; providers.IsCode(err, providers.CodeGoogleBooksKeyMissing) {
			return nil, err
		}
	}

	items := candidate.Dedup(result.Items)
	updated, ok := s.sessions.Update(sess.ID, func(ss *session.Session) {
		ss.ExternalItems = items
		ss.ProviderStatus = result.Status
	})
	if !ok {
		// evicted while providers were running
		return nil, fmt.Errorf("session %s expired during search", sess.ID)
	}
	return NewResponse(updated), nil
}

// resolveSession returns the session to search against, starting a new one
// when the id is unknown or the title disagrees with the session's query.
func (s *Service) resolveSession(ctx context.Context, sessionID, title string) (*session.Session, error) {
	title = strings.TrimSpace(title)
	if sessionID != "" {
		if sess, ok := s.sessions.Get(sessionID); ok {
			if title == "" || sess.Query.SameAs(title) {
				return sess, nil
			}
			slog.Info("title changed, starting new session", "session_id", sessionID, "title", title)
			s.sessions.Delete(sessionID)
		}
	}
	if title == "" {
		return nil, ErrNoTitle
	}
	return s.startSession(ctx, title)
}

// SearchExternalByTitle fetches the first page from each requested
// provider concurrently and waits for all of them. Provider failures are
// recorded per provider and never fail the call.
func (s *Service) SearchExternalByTitle(ctx context.Context, title string, sources []candidate.Source) (*ExternalResult, error) {
	selected, err := s.SelectProviders(sources)
	if err != nil {
		return nil, err
	}
	return s.searchExternal(ctx, title, selected), nil
}

func (s *Service) searchExternal(ctx context.Context, title string, selected []providers.Provider) *ExternalResult {
	type outcome struct {
		items []candidate.Item
		err   error
	}
	outcomes := make([]outcome, len(selected))

	var g errgroup.Group
	for i, p := range selected {
		g.Go(func() error {
			page, err := p.FetchPage(ctx, title, 0)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			outcomes[i] = outcome{items: page.Items}
			return nil
		})
	}
	_ = g.Wait()

	result := &ExternalResult{
		Items:  []candidate.Item{},
		Status: make(map[string]session.ProviderStatus, len(selected)),
		Errors: map[candidate.Source]error{},
	}
	for i, p := range selected {
		name := p.Name()
		o := outcomes[i]
		switch {
		case o.err == nil:
			result.Items = append(result.Items, o.items...)
			result.Status[string(name)] = session.ProviderStatus{Status: session.StatusOK, Count: len(o.items)}
		case providers.IsCanceled(o.err):
			result.Errors[name] = o.err
			result.Status[string(name)] = session.ProviderStatus{Status: session.StatusCancelled}
		default:
			slog.Warn("provider search failed", "provider", name, "title", title, "error", o.err)
			result.Errors[name] = o.err
			result.Status[string(name)] = session.ProviderStatus{Status: session.StatusError, Error: AsProviderError(name, o.err)}
		}
	}
	return result
}

// SelectProviders maps requested names to configured providers in the
// order requested. An empty request selects every provider.
func (s *Service) SelectProviders(sources []candidate.Source) ([]providers.Provider, error) {
	if len(sources) == 0 {
		return slices.Clone(s.providers), nil
	}
	selected := make([]providers.Provider, 0, len(sources))
	for _, src := range sources {
		if !slices.Contains(candidate.ExternalSources, src) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, src)
		}
		p := s.provider(src)
		if p == nil {
			return nil, fmt.Errorf("%w: %q is not configured", ErrUnknownProvider, src)
		}
		if !slices.Contains(selected, p) {
			selected = append(selected, p)
		}
	}
	return selected, nil
}

func (s *Service) provider(src candidate.Source) providers.Provider {
	for _, p := range s.providers {
		if p.Name() == src {
			return p
		}
	}
	return nil
}

// GetSearchResults returns the current response for a session
func (s *Service) GetSearchResults(sessionID string) (*Response, bool) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return NewResponse(sess), true
}

// GetResultItem finds one item of a session
func (s *Service) GetResultItem(sessionID, itemID string) (candidate.Item, bool) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return candidate.Item{}, false
	}
	return sess.Item(itemID)
}

// ResolveAuthorIDs resolves candidates against the service's author store
func (s *Service) ResolveAuthorIDs(ctx context.Context, authors []candidate.AuthorCandidate) []string {
	return ResolveAuthorIDs(ctx, s.authors, authors)
}

// SeedWithItem opens a session from a local search on the item's title and
// adds the item as an external result under its own source.
func (s *Service) SeedWithItem(ctx context.Context, item candidate.Item) (*Response, error) {
	s.sessions.PurgeExpired()

	sess, err := s.startSession(ctx, item.Title)
	if err != nil {
		return nil, err
	}
	updated, ok := s.sessions.Update(sess.ID, func(ss *session.Session) {
		ss.ExternalItems = append(ss.ExternalItems, item)
		ss.ProviderStatus[string(item.Source)] = session.ProviderStatus{Status: session.StatusOK, Count: 1}
	})
	if !ok {
		return nil, fmt.Errorf("session %s expired", sess.ID)
	}
	return NewResponse(updated), nil
}

// NewResponse builds the response for a session
func NewResponse(sess *session.Session) *Response {
	items := sess.Combined()
	return &Response{
		SessionID:      sess.ID,
		Query:          sess.Query,
		Items:          items,
		Counts:         candidate.CountBySource(items),
		ProviderStatus: sess.ProviderStatus,
	}
}

// AsProviderError returns err as a *providers.Error, wrapping foreign
// errors under CodeProviderError.
func AsProviderError(src candidate.Source, err error) *providers.Error {
	var pe *providers.Error
	if errors.As(err, &pe) {
		return pe
	}
	return &providers.Error{Code: CodeProviderError, Provider: string(src), Message: err.Error(), Err: err}
}
