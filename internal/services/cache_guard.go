package services

import (
	"hash/fnv"
	"sync"
)

const guardStripes = 64

// cacheGuard orders cache fills against invalidations. A download takes a
// ticket before reading the backend and may only fill the cache if no write
// or delete to a key in the same stripe happened in between.
type cacheGuard struct {
	mu          sync.Mutex
	generations [guardStripes]uint64
}

func (g *cacheGuard) stripe(container, key string) int {
	h := fnv.New32a()
	h.Write([]byte(container))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return int(h.Sum32() % guardStripes)
}

// ticket returns the current generation of the key's stripe.
func (g *cacheGuard) ticket(container, key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations[g.stripe(container, key)]
}

// bump must be called after the backend write and before the cache invalidation.
func (g *cacheGuard) bump(container, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generations[g.stripe(container, key)]++
}

// fillIf runs fill while holding the guard, and only if the stripe is still
// at generation ticket. It reports whether fill ran.
func (g *cacheGuard) fillIf(container, key string, ticket uint64, fill func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generations[g.stripe(container, key)] != ticket {
		return false
	}
	fill()
	return true
}
