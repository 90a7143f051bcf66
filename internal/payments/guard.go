package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmitGuard admits one in-flight submission per page.
type SubmitGuard interface {
	// Acquire returns false when another submission for the page holds the
	// guard.
	Acquire(ctx context.Context, pageID string) (bool, error)
	Release(ctx context.Context, pageID string) error
}

// MemorySubmitGuard is a process-local guard.
type MemorySubmitGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemorySubmitGuard creates a guard whose holds lapse after ttl, so a
// crashed submission cannot wedge a page.
func NewMemorySubmitGuard(ttl time.Duration) *MemorySubmitGuard {
	return &MemorySubmitGuard{held: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (g *MemorySubmitGuard) Acquire(_ context.Context, pageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if until, ok := g.held[pageID]; ok && (g.ttl <= 0 || now.Before(until)) {
		return false, nil
	}
	g.held[pageID] = now.Add(g.ttl)
	return true, nil
}

func (g *MemorySubmitGuard) Release(_ context.Context, pageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, pageID)
	return nil
}

// RedisSubmitGuard shares the guard between replicas with SET NX.
type RedisSubmitGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisSubmitGuard creates a Redis-backed guard.
func NewRedisSubmitGuard(client *redis.Client, ttl time.Duration) *RedisSubmitGuard {
	return &RedisSubmitGuard{redis: client, ttl: ttl}
}

func submitKey(pageID string) string {
	return fmt.Sprintf("portal:submit:%s", pageID)
}

func (g *RedisSubmitGuard) Acquire(ctx context.Context, pageID string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, submitKey(pageID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("payments: acquire submit guard: %w", err)
	}
	return ok, nil
}

func (g *RedisSubmitGuard) Release(ctx context.Context, pageID string) error {
	if err := g.redis.Del(ctx, submitKey(pageID)).Err(); err != nil {
		return fmt.Errorf("payments: release submit guard: %w", err)
	}
	return nil
}
