// Package jobs runs asynchronous external searches. A job pages through
// every selected provider concurrently, keeps the matching items and adds
// them to the job's search session as they arrive.
//
// Unlike a synchronous external search, which replaces a session's external
// items on every call, a job only ever appends to its session.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/search"
	"github.com/justyntemme/biblio/internal/session"
)

// ErrTooManyJobs is returned by Start when the running-job limit is reached
var ErrTooManyJobs = errors.New("too many running search jobs")

// Defaults applied when Config fields are zero
const (
	DefaultMaxPages   = 10
	DefaultMaxRunning = 20
)

// Config tunes a Manager
type Config struct {
	TTL        time.Duration
	MaxPages   int // per provider
	MaxRunning int
}

// Observer is told about job lifecycle events
type Observer interface {
	JobStarted()
	JobFinished(state State)
}

// Manager owns all jobs of the process
type Manager struct {
	search *search.Service
	cfg    Config
	obs    Observer
	now    func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewManager creates a job manager over the search service's local search,
// providers and session store. obs may be nil.
func NewManager(svc *search.Service, cfg Config, obs Observer) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = session.DefaultTTL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = DefaultMaxRunning
	}
	return &Manager{
		search: svc,
		cfg:    cfg,
		obs:    obs,
		now:    time.Now,
		jobs:   map[string]*Job{},
	}
}

// Start seeds a session with a local search and launches one paging loop
// per selected provider. It returns before any provider page is fetched.
func (m *Manager) Start(ctx context.Context, title string, sources []candidate.Source) (*Status, error) {
	if candidate.NormalizeTitle(title) == "" {
		return nil, search.ErrNoTitle
	}
	selected, err := m.search.SelectProviders(sources)
	if err != nil {
		return nil, err
	}

	m.PurgeExpired()
	if m.runningCount() >= m.cfg.MaxRunning {
		return nil, ErrTooManyJobs
	}

	seed, err := m.search.RunLocalSearch(ctx, title)
	if err != nil {
		return nil, err
	}

	job := newJob(uuid.New().String(), seed.SessionID, seed.Query, seed.Items, m.cfg.TTL, m.now)

	m.mu.Lock()
	m.jobs[job.id] = job
	m.mu.Unlock()

	if m.obs != nil {
		m.obs.JobStarted()
	}

	if len(selected) == 0 {
		job.markDone()
		m.finished(job)
		return job.Status(), nil
	}

	// Provider loops outlive the request that started them. Every loop is
	// registered before any starts so the job cannot finish early.
	contexts := make([]context.Context, len(selected))
	for i, p := range selected {
		pctx, cancel := context.WithCancel(context.Background())
		job.register(string(p.Name()), cancel)
		contexts[i] = pctx
	}
	for i, p := range selected {
		m.wg.Add(1)
		go m.page(contexts[i], job, p)
	}
	go func() {
		<-job.Done()
		m.finished(job)
	}()

	slog.Info("search job started", "search_id", job.id, "session_id", job.sessionID, "title", seed.Query.Title, "providers", len(selected))
	return job.Status(), nil
}

func (m *Manager) finished(job *Job) {
	st := job.Status()
	slog.Info("search job finished", "search_id", st.SearchID, "state", st.State, "items", len(st.Items))
	if m.obs != nil {
		m.obs.JobFinished(st.State)
	}
}

// page is the paging loop shared by every provider.
func (m *Manager) page(ctx context.Context, job *Job, p providers.Provider) {
	defer m.wg.Done()

	name := string(p.Name())
	size := p.PageSize()
	offset := 0

	for pageNum := 1; ; pageNum++ {
		if job.IsCancelled() {
			job.finish(name, session.StatusCancelled, nil)
			return
		}
		if pageNum > m.cfg.MaxPages {
			job.finish(name, session.StatusDone, nil)
			return
		}

		page, err := p.FetchPage(ctx, job.query.Title, offset)
		if err != nil {
			if providers.IsCanceled(err) || job.IsCancelled() {
				job.finish(name, session.StatusCancelled, nil)
				return
			}
			slog.Warn("search job provider failed", "search_id", job.id, "provider", name, "page", pageNum, "error", err)
			job.finish(name, session.StatusError, search.AsProviderError(p.Name(), err))
			return
		}

		matched := make([]candidate.Item, 0, len(page.Items))
		for _, it := range page.Items {
			if job.query.Matches(it.Title) {
				matched = append(matched, it)
			}
		}

		if added := job.merge(name, pageNum, page, matched); len(added) > 0 {
			if _, ok := m.search.Sessions().AppendExternal(job.sessionID, added...); !ok {
				slog.Debug("search job session gone", "search_id", job.id, "session_id", job.sessionID)
			}
		}

		offset += size
		if page.Returned < size {
			break
		}
		if page.TotalKnown && offset >= page.Total {
			break
		}
	}
	job.finish(name, session.StatusDone, nil)
}

// Status returns the job's current status, or false when it is unknown or
// expired.
func (m *Manager) Status(searchID string) (*Status, bool) {
	job, ok := m.get(searchID)
	if !ok {
		return nil, false
	}
	return job.Status(), true
}

// Wait blocks until the job stops running, timeout passes or ctx is done,
// then returns its status.
func (m *Manager) Wait(ctx context.Context, searchID string, timeout time.Duration) (*Status, bool) {
	job, ok := m.get(searchID)
	if !ok {
		return nil, false
	}
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-job.Done():
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return job.Status(), true
}

// Cancel stops a job and aborts its in-flight provider calls. Cancelling
// a finished or cancelled job changes nothing and reports the same status.
func (m *Manager) Cancel(searchID string) (*Status, bool) {
	job, ok := m.get(searchID)
	if !ok {
		return nil, false
	}
	if job.isRunning() {
		slog.Info("cancelling search job", "search_id", searchID)
	}
	job.Cancel()
	return job.Status(), true
}

// Item finds an item of the job, looking in the job's session first.
func (m *Manager) Item(searchID, itemID string) (candidate.Item, bool) {
	job, ok := m.get(searchID)
	if !ok {
		return candidate.Item{}, false
	}
	if it, ok := m.search.GetResultItem(job.sessionID, itemID); ok {
		return it, true
	}
	return job.item(itemID)
}

// SessionID returns the session backing a job
func (m *Manager) SessionID(searchID string) (string, bool) {
	job, ok := m.get(searchID)
	if !ok {
		return "", false
	}
	return job.sessionID, true
}

// PurgeExpired drops expired jobs, cancelling any that still run
func (m *Manager) PurgeExpired() int {
	now := m.now()

	m.mu.Lock()
	var stale []*Job
	for id, job := range m.jobs {
		if job.expired(now) {
			stale = append(stale, job)
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	for _, job := range stale {
		job.Cancel()
	}
	return len(stale)
}

// Shutdown cancels every job and waits for provider loops to exit or ctx
// to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, job := range m.jobs {
		job.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get returns a live job, evicting it when expired
func (m *Manager) get(searchID string) (*Job, bool) {
	searchID = strings.TrimSpace(searchID)

	m.mu.Lock()
	job, ok := m.jobs[searchID]
	if ok && job.expired(m.now()) {
		delete(m.jobs, searchID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		if job != nil {
			job.Cancel()
		}
		return nil, false
	}
	return job, true
}

func (m *Manager) runningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.isRunning() {
			n++
		}
	}
	return n
}
