package jobs

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/session"
)

// State is the lifecycle state of a job
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// Progress tracks one provider's paging within a job
type Progress struct {
	Status       string           `json:"status"`
	Page         int              `json:"page"`
	FetchedItems int              `json:"fetchedItems"`
	MatchedItems int              `json:"matchedItems"`
	Total        int              `json:"total"`
	Error        *providers.Error `json:"error,omitempty"`
}

// Status is a point-in-time copy of a job
type Status struct {
	SearchID         string                   `json:"searchId"`
	SessionID        string                   `json:"sessionId"`
	Query            candidate.Query          `json:"query"`
	State            State                    `json:"state"`
	Cancelled        bool                     `json:"cancelled"`
	Items            []candidate.Item         `json:"items"`
	Counts           map[candidate.Source]int `json:"counts"`
	ProviderProgress map[string]Progress      `json:"providerProgress"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// Job is one asynchronous multi-provider search. All fields are guarded by
// mu; provider loops only touch a job through its methods.
type Job struct {
	mu sync.Mutex

	id        string
	sessionID string
	query     candidate.Query
	state     State
	cancelled bool

	localItems    []candidate.Item
	externalItems []candidate.Item
	itemKeys      map[string]bool

	progress map[string]Progress
	cancels  map[string]context.CancelFunc
	running  int

	createdAt time.Time
	updatedAt time.Time
	ttl       time.Duration
	now       func() time.Time

	// closed when the job leaves StateRunning
	finished chan struct{}
}

func newJob(id, sessionID string, query candidate.Query, local []candidate.Item, ttl time.Duration, now func() time.Time) *Job {
	keys := make(map[string]bool, len(local))
	for _, it := range local {
		keys[candidate.DedupKey(it)] = true
	}
	t := now()
	return &Job{
		id:            id,
		sessionID:     sessionID,
		query:         query,
		state:         StateRunning,
		localItems:    local,
		externalItems: []candidate.Item{},
		itemKeys:      keys,
		progress:      map[string]Progress{},
		cancels:       map[string]context.CancelFunc{},
		createdAt:     t,
		updatedAt:     t,
		ttl:           ttl,
		now:           now,
		finished:      make(chan struct{}),
	}
}

// register adds a provider loop before it starts
func (j *Job) register(provider string, cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress[provider] = Progress{Status: session.StatusRunning}
	j.cancels[provider] = cancel
	j.running++
}

// IsCancelled reports whether Cancel was called
func (j *Job) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// merge records a fetched page and returns the matched items not seen
// before. Pages arriving after cancellation are discarded.
func (j *Job) merge(provider string, pageNum int, page *providers.Page, matched []candidate.Item) []candidate.Item {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancelled {
		return nil
	}

	var added []candidate.Item
	for _, it := range matched {
		key := candidate.DedupKey(it)
		if j.itemKeys[key] {
			continue
		}
		j.itemKeys[key] = true
		added = append(added, it)
	}
	j.externalItems = append(j.externalItems, added...)

	p := j.progress[provider]
	p.Page = pageNum
	p.FetchedItems += page.Returned
	p.MatchedItems += len(matched)
	p.Total = page.Total
	j.progress[provider] = p
	j.updatedAt = j.now()
	return added
}

// finish ends one provider loop with status, unless the provider already
// reached a terminal status. The job is done once every loop has finished.
func (j *Job) finish(provider, status string, err *providers.Error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.progress[provider]
	if p.Status == session.StatusRunning {
		p.Status = status
		p.Error = err
		j.progress[provider] = p
	}
	if cancel := j.cancels[provider]; cancel != nil {
		cancel()
		delete(j.cancels, provider)
	}
	j.running--
	j.updatedAt = j.now()

	if j.running <= 0 && j.state == StateRunning {
		j.state = StateDone
		close(j.finished)
	}
}

// markDone ends a job that has no provider loops
func (j *Job) markDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateRunning && j.running == 0 {
		j.state = StateDone
		j.updatedAt = j.now()
		close(j.finished)
	}
}

// Cancel stops the job. It is a no-op once the job is done or cancelled.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateRunning {
		return
	}
	j.cancelled = true
	j.state = StateCancelled
	for _, cancel := range j.cancels {
		cancel()
	}
	for name, p := range j.progress {
		if p.Status == session.StatusRunning {
			p.Status = session.StatusCancelled
			j.progress[name] = p
		}
	}
	j.updatedAt = j.now()
	close(j.finished)
}

// Status returns a snapshot of the job
func (j *Job) Status() *Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	items := make([]candidate.Item, 0, len(j.localItems)+len(j.externalItems))
	items = append(items, j.localItems...)
	items = append(items, j.externalItems...)

	return &Status{
		SearchID:         j.id,
		SessionID:        j.sessionID,
		Query:            j.query,
		State:            j.state,
		Cancelled:        j.cancelled,
		Items:            items,
		Counts:           candidate.CountBySource(items),
		ProviderProgress: maps.Clone(j.progress),
		CreatedAt:        j.createdAt,
		UpdatedAt:        j.updatedAt,
	}
}

// item finds an item among the job's own results
func (j *Job) item(itemID string) (candidate.Item, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, list := range [][]candidate.Item{j.localItems, j.externalItems} {
		for _, it := range list {
			if it.ItemID == itemID {
				return it, true
			}
		}
	}
	return candidate.Item{}, false
}

func (j *Job) expired(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return now.Sub(j.updatedAt) > j.ttl
}

func (j *Job) isRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateRunning
}

// Done is closed when the job stops running
func (j *Job) Done() <-chan struct{} {
	return j.finished
}
