package reorg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned by Acquire when another move holds the key.
var ErrBusy = errors.New("a move is already in progress")

// Guard is a single-flight lock with a hard TTL. A holder that never
// releases loses the lock once the TTL passes.
type Guard interface {
	// Acquire takes key for ttl and returns a release func. It returns
	// ErrBusy when the key is held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// --- Redis ---

// releaseScript deletes the key only when it still holds our token, so a
// holder whose lock expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisGuard implements Guard with SET NX PX, shared by every instance.
type redisGuard struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisGuard creates a guard on a Redis client.
func NewRedisGuard(rdb *redis.Client) Guard {
	return &redisGuard{rdb: rdb, prefix: "mediatag:move:"}
}

func (g *redisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, g.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring move lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.rdb, []string{g.prefix + key}, token).Err()
	}, nil
}

// --- Memory ---

// memoryGuard implements Guard for a single process.
type memoryGuard struct {
	mu    sync.Mutex
	held  map[string]lease
	now   func() time.Time
	count uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

// NewMemoryGuard creates an in-process guard.
func NewMemoryGuard() Guard {
	return &memoryGuard{held: make(map[string]lease), now: time.Now}
}

func (g *memoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if l, ok := g.held[key]; ok && now.Before(l.expires) {
		return nil, ErrBusy
	}
	g.count++
	id := g.count
	g.held[key] = lease{id: id, expires: now.Add(ttl)}

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if l, ok := g.held[key]; ok && l.id == id {
			delete(g.held, key)
		}
	}, nil
}
