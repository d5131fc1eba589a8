// Package session keeps short-lived search sessions: the query, the local
// hits it started from and the external hits gathered since. Sessions live
// in process memory and expire when not updated within their TTL.
package session

import (
	"maps"
	"slices"
	"time"

	"github.com/justyntemme/biblio/internal/candidate"
	"github.com/justyntemme/biblio/internal/providers"
)

// DefaultTTL is how long a session survives without updates
const DefaultTTL = 15 * time.Minute

// Provider status values
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

// ProviderStatus is the outcome of the last call against one provider.
type ProviderStatus struct {
	Status string           `json:"status"`
	Count  int              `json:"count"`
	Error  *providers.Error `json:"error,omitempty"`
}

// Session is one search session. Values handed out by a Store are copies;
// mutate through Store.Update.
type Session struct {
	ID             string                    `json:"sessionId"`
	Query          candidate.Query           `json:"query"`
	LocalItems     []candidate.Item          `json:"localItems"`
	ExternalItems  []candidate.Item          `json:"externalItems"`
	ProviderStatus map[string]ProviderStatus `json:"providerStatus"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
	TTL            time.Duration             `json:"-"`
}

// Combined returns local items followed by external items, each in their
// stored order.
func (s *Session) Combined() []candidate.Item {
	out := make([]candidate.Item, 0, len(s.LocalItems)+len(s.ExternalItems))
	out = append(out, s.LocalItems...)
	return append(out, s.ExternalItems...)
}

// Item finds an item by id among local and external items.
func (s *Session) Item(itemID string) (candidate.Item, bool) {
	for _, it := range s.LocalItems {
		if it.ItemID == itemID {
			return it, true
		}
	}
	for _, it := range s.ExternalItems {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return candidate.Item{}, false
}

// Expired reports whether more than TTL has passed since the last update.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > s.TTL
}

func (s *Session) clone() *Session {
	c := *s
	c.LocalItems = slices.Clone(s.LocalItems)
	c.ExternalItems = slices.Clone(s.ExternalItems)
	c.ProviderStatus = maps.Clone(s.ProviderStatus)
	if c.LocalItems == nil {
		c.LocalItems = []candidate.Item{}
	}
	if c.ExternalItems == nil {
		c.ExternalItems = []candidate.Item{}
	}
	if c.ProviderStatus == nil {
		c.ProviderStatus = map[string]ProviderStatus{}
	}
	return &c
}

// Store holds sessions by id. Absent and expired sessions are reported as
// (nil, false), never as errors.
type Store interface {
	// Create stores a new session with a fresh id
	Create(query candidate.Query, local, external []candidate.Item) *Session

	// Get returns the session, evicting it if it has expired
	Get(id string) (*Session, bool)

	// Update applies fn to the stored session and refreshes UpdatedAt
	Update(id string, fn func(*Session)) (*Session, bool)

	// AppendExternal appends items to the session's external items
	AppendExternal(id string, items ...candidate.Item) (*Session, bool)

	// Delete removes a session
	Delete(id string)

	// PurgeExpired removes every expired session and returns how many
	PurgeExpired() int

	// Len returns the number of tracked sessions, expired or not
	Len() int
}
