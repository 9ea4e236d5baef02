package engagement

import (
	"sync"
	"time"

	"github.com/eduverse-ninja/dojo/internal/domain"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
)

// ─── Session Cache ──────────────────────────────────────────────────────────
// One session per user serializes every read-modify-write of that user's
// aggregate. Only the goroutine holding session.mu moves its state:
//
//	NotLoaded → Loading → Loaded   load succeeded (or user is new)
//	NotLoaded → Loading → Failed   load failed; the next call retries
//	Loaded    → Loading → Loaded   stored revision moved on; reloaded
//	Loaded    → NotLoaded          save failed; the cached copy is dropped
//
// A Loaded copy is served only while the store still holds its revision, so
// writes from another process are picked up on the next call. Sessions idle
// for the TTL are evicted; read-only queries never create one.

// CacheState is the lifecycle of a cached aggregate.
type CacheState int

const (
	NotLoaded CacheState = iota
	Loading
	Loaded
	Failed
)

func (s CacheState) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type session struct {
	mu    sync.Mutex
	state CacheState
	agg   *domain.UserAggregate

	// Guarded by sessionCache.mu. A session with refs > 0 is never evicted,
	// so two goroutines can never hold different sessions for one user.
	refs     int
	lastUsed time.Time
}

// drop discards the cached aggregate so the next call reloads from the store.
func (s *session) drop() {
	s.state = NotLoaded
	s.agg = nil
}

// DefaultSessionTTL is how long an unused session stays in memory.
const DefaultSessionTTL = 10 * time.Minute

type sessionCache struct {
	mu       sync.Mutex
	sessions map[string]*session
	idleTTL  time.Duration
	swept    time.Time
	now      func() time.Time
}

func newSessionCache(idleTTL time.Duration, now func() time.Time) *sessionCache {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionTTL
	}
	return &sessionCache{sessions: make(map[string]*session), idleTTL: idleTTL, now: now}
}

// acquire pins the user's session until release. Without create, unknown
// users yield nil.
func (c *sessionCache) acquire(userID string, create bool) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sweep(now)
	s, ok := c.sessions[userID]
	if !ok {
		if !create {
			return nil
		}
		s = &session{}
		c.sessions[userID] = s
		observability.SessionsCached.Set(float64(len(c.sessions)))
	}
	s.refs++
	s.lastUsed = now
	return s
}

func (c *sessionCache) release(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.refs--
	s.lastUsed = c.now()
}

// sweep evicts unpinned sessions idle for idleTTL, at most once per idleTTL.
// Caller holds c.mu.
func (c *sessionCache) sweep(now time.Time) {
	if now.Sub(c.swept) < c.idleTTL {
		return
	}
	c.swept = now
	for id, s := range c.sessions {
		if s.refs == 0 && now.Sub(s.lastUsed) >= c.idleTTL {
			delete(c.sessions, id)
			observability.SessionsEvicted.Inc()
		}
	}
	observability.SessionsCached.Set(float64(len(c.sessions)))
}

// len reports the number of sessions held.
func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// state reports the cache state without creating a session.
func (c *sessionCache) state(userID string) CacheState {
	c.mu.Lock()
	s, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return NotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
