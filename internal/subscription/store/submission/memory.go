package submission

import (
	"context"
	"sync"
	"time"

	"subport/pkg/requestcontext"
)

// InMemory is a process-local token guard for tests and single-node runs.
type InMemory struct {
	mu      sync.Mutex
	ttl     time.Duration
	claimed map[string]time.Time
}

func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemory{
		ttl:     ttl,
		claimed: make(map[string]time.Time),
	}
}

// Claim records the token and reports whether this call was the first to do
// so within the TTL window.
func (g *InMemory) Claim(ctx context.Context, token string) (bool, error) {
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.claimed[token]; ok && now.Before(expiry) {
		return false, nil
	}
	g.claimed[token] = now.Add(g.ttl)

	// Opportunistic sweep keeps the map from growing unbounded.
	for key, expiry := range g.claimed {
		if !now.Before(expiry) {
			delete(g.claimed, key)
		}
	}
	return true, nil
}
