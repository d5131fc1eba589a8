package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/jobs"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/session"
)

func TestObserveFetch(t *testing.T) {
	m := New()

	m.ObserveFetch("dnb", providers.OutcomeOK, "", 12, 120*time.Millisecond)
	m.ObserveFetch("dnb", providers.OutcomeOK, "", 3, 80*time.Millisecond)
	m.ObserveFetch("dnb", providers.OutcomeError, providers.CodeDNBUnavailable, 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("dnb", providers.OutcomeOK, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("dnb", providers.OutcomeError, providers.CodeDNBUnavailable)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.fetchItems.WithLabelValues("dnb")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.fetchDuration))
}

func TestJobLifecycle(t *testing.T) {
	m := New()

	m.JobStarted()
	m.JobStarted()
	m.JobFinished(jobs.StateDone)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("done")))

	m.JobFinished(jobs.StateCancelled)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("cancelled")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	store := session.NewMemoryStore(time.Minute, 10)
	store.Create(candidate.BuildQuery("Dune"), nil, nil)
	m.TrackSessions(store)
	m.ObserveFetch("google_books", providers.OutcomeOK, "", 1, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `biblio_provider_fetches_total{code="",outcome="ok",provider="google_books"} 1`)
	assert.Contains(t, string(body), "biblio_search_sessions 1")
	assert.Contains(t, string(body), "go_goroutines")
}
