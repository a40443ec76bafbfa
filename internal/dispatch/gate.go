package dispatch

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Gate is the first-observation set: it decides whether an object identity
// has already been reported. Entries age out after the TTL without a
// sighting, so an object that truly left and came back is reported again.
//
// Admission is split from the check on purpose: the caller marks an id only
// after the repository commit succeeds, so a failed save is retried on the
// next sighting.
type Gate struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewGate(maxEntries int, ttl time.Duration) *Gate {
	c, _ := lru.New[string, time.Time](maxEntries)
	return &Gate{cache: c, ttl: ttl}
}

// Seen reports whether the id is currently admitted, refreshing its clock on
// a fresh sighting. A stale entry counts as unseen.
func (g *Gate) Seen(id string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lastSeen, ok := g.cache.Get(id)
	if !ok {
		return false
	}
	if now.Sub(lastSeen) >= g.ttl {
		g.cache.Remove(id)
		return false
	}
	g.cache.Add(id, now)
	return true
}

// Admit records the id after its event has been persisted.
func (g *Gate) Admit(id string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Add(id, now)
}

// Len reports admitted identities, for diagnostics.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Len()
}
