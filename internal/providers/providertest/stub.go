// Package providertest provides a scriptable providers.Provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
)

// FetchFunc produces the page at offset
type FetchFunc func(ctx context.Context, title string, offset int) (*providers.Page, error)

// Stub is a provider whose pages come from Fetch. Calls are recorded.
type Stub struct {
	Source candidate.Source
	Size   int
	Fetch  FetchFunc

	mu      sync.Mutex
	offsets []int
}

var _ providers.Provider = (*Stub)(nil)

func (s *Stub) Name() candidate.Source { return s.Source }

func (s *Stub) PageSize() int {
	if s.Size <= 0 {
		return 10
	}
	return s.Size
}

func (s *Stub) FetchPage(ctx context.Context, title string, offset int) (*providers.Page, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Fetch(ctx, title, offset)
}

// Offsets returns the offsets requested so far
func (s *Stub) Offsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.offsets...)
}

// Calls returns the number of FetchPage calls
func (s *Stub) Calls() int {
	return len(s.Offsets())
}

// Items builds items from titles, each credited to author
func Items(src candidate.Source, author string, titles ...string) []candidate.Item {
	items := make([]candidate.Item, 0, len(titles))
	for _, t := range titles {
		items = append(items, candidate.NewItem(candidate.ItemFields{
			Title:   t,
			Authors: candidate.NormalizeAuthors([]string{author}),
			Source:  src,
		}))
	}
	return items
}

// Fixed always returns the same items with a known total
func Fixed(src candidate.Source, items []candidate.Item) *Stub {
	return &Stub{
		Source: src,
		Fetch: func(_ context.Context, _ string, offset int) (*providers.Page, error) {
			return &providers.Page{
				Items:    items,
				Returned: len(items),
				Total:    len(items),
				Limit:    10,
				Offset:   offset,
			}, nil
		},
	}
}

// Failing always fails with err
func Failing(src candidate.Source, err error) *Stub {
	return &Stub{
		Source: src,
		Fetch: func(context.Context, string, int) (*providers.Page, error) {
			return nil, err
		},
	}
}
