package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/justyntemme/biblio/internal/candidate"
)

// DefaultMaxSessions bounds the number of sessions kept in memory
const DefaultMaxSessions = 500

// MemoryStore is a Store backed by a size-bounded LRU. When full, the least
// recently used session is dropped.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *simplelru.LRU[string, *Session]
	ttl      time.Duration
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store. Non-positive arguments select the defaults.
func NewMemoryStore(ttl time.Duration, maxSessions int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	// NewLRU only fails for a non-positive size
	cache, _ := simplelru.NewLRU[string, *Session](maxSessions, nil)
	return &MemoryStore{
		sessions: cache,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(query candidate.Query, local, external []candidate.Item) *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.New().String(),
		Query:          query,
		LocalItems:     local,
		ExternalItems:  external,
		ProviderStatus: map[string]ProviderStatus{},
		CreatedAt:      now,
		UpdatedAt:      now,
		TTL:            m.ttl,
	}
	s = s.clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Add(s.ID, s)
	return s.clone()
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(id)
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

func (m *MemoryStore) Update(id string, fn func(*Session)) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(id)
	if !ok {
		return nil, false
	}
	next := s.clone()
	fn(next)
	// identity fields are owned by the store
	next.ID = s.ID
	next.CreatedAt = s.CreatedAt
	next.TTL = s.TTL
	next.UpdatedAt = m.now()
	m.sessions.Add(id, next)
	return next.clone(), true
}

func (m *MemoryStore) AppendExternal(id string, items ...candidate.Item) (*Session, bool) {
	return m.Update(id, func(s *Session) {
		s.ExternalItems = append(s.ExternalItems, items...)
	})
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(id)
}

func (m *MemoryStore) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for _, id := range m.sessions.Keys() {
		if s, ok := m.sessions.Peek(id); ok && s.Expired(now) {
			m.sessions.Remove(id)
			purged++
		}
	}
	return purged
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

// live returns the stored session, evicting it when expired. Caller holds mu.
func (m *MemoryStore) live(id string) (*Session, bool) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	if s.Expired(m.now()) {
		m.sessions.Remove(id)
		return nil, false
	}
	return s, true
}
