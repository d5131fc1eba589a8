package providers

import (
	"context"
	"time"
)

// Fetch outcomes reported to an Observer
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Observer receives one event per page fetch.
type Observer interface {
	ObserveFetch(provider, outcome, code string, items int, elapsed time.Duration)
}

type instrumentedProvider struct {
	Provider
	obs Observer
}

// WithObserver reports every FetchPage call of p to obs.
func WithObserver(p Provider, obs Observer) Provider {
	if obs == nil {
		return p
	}
	return &instrumentedProvider{Provider: p, obs: obs}
}

func (i *instrumentedProvider) FetchPage(ctx context.Context, title string, offset int) (*Page, error) {
	start := time.Now()
	page, err := i.Provider.FetchPage(ctx, title, offset)
	elapsed := time.Since(start)

	name := string(i.Name())
	switch {
	case err == nil:
		i.obs.ObserveFetch(name, OutcomeOK, "", len(page.Items), elapsed)
	case IsCanceled(err):
		i.obs.ObserveFetch(name, OutcomeCanceled, "", 0, elapsed)
	default:
		i.obs.ObserveFetch(name, OutcomeError, CodeOf(err), 0, elapsed)
	}
	return page, err
}

func (i *instrumentedProvider) Unwrap() Provider {
	return i.Provider
}
