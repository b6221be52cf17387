package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease grants exclusive ownership of a named slot for a while.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryLease is a process-local lease.
type MemoryLease struct {
	mu      sync.Mutex
	held    map[string]time.Time
	nowFunc func() time.Time
}

// NewMemoryLease creates an empty lease table.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{held: make(map[string]time.Time), nowFunc: time.Now}
}

func (l *MemoryLease) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLease) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// releaseScript deletes the key only while it still holds our owner id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease coordinates slots across worker processes with SET NX.
type RedisLease struct {
	client *redis.Client
	prefix string
	owner  string
}

// NewRedisLease creates a lease whose keys live under prefix, separated from
// the slot name by a colon.
func NewRedisLease(client *redis.Client, prefix string) *RedisLease {
	if prefix == "" {
		prefix = "campusops:sched"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisLease{client: client, prefix: prefix, owner: uuid.NewString()}
}

func (l *RedisLease) key(slot string) string { return l.prefix + slot }

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key(key), l.owner, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key(key)}, l.owner).Err()
}
