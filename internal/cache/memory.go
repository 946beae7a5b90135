package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBlacklist remplace la blacklist Redis quand le serveur tourne sans Redis.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for id, until := range b.revoked {
		if now.After(until) {
			delete(b.revoked, id)
		}
	}
	b.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.revoked[tokenID]
	return ok && time.Now().Before(until), nil
}
