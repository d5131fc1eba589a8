package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// limitedProvider throttles FetchPage calls of the wrapped provider.
type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most requestsPerSecond pages are fetched
// per second, with bursts up to burst. A non-positive rate disables
// limiting and returns p unchanged.
func WithRateLimit(p Provider, requestsPerSecond float64, burst int) Provider {
	if requestsPerSecond <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &limitedProvider{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// FetchPage blocks until the limiter allows a request. Returns an error if
// the context is cancelled while waiting.
func (l *limitedProvider) FetchPage(ctx context.Context, title string, offset int) (*Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", l.Name(), err)
	}
	return l.Provider.FetchPage(ctx, title, offset)
}

// Unwrap returns the wrapped provider.
func (l *limitedProvider) Unwrap() Provider {
	return l.Provider
}

