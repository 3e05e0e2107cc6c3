package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("lock held by another worker")

const DefaultTTL = 10 * time.Minute

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Client is the subset of go-redis used here.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker hands out short-lived exclusive locks. A nil Locker, or one without
// a client, grants every lock.
type Locker struct {
	client Client
	prefix string
	ttl    time.Duration
}

func New(client Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// NewClient parses redisURL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type Lock struct {
	client Client
	key    string
	token  string
}

// TryLock acquires name without waiting. It returns ErrLocked when another
// holder owns it.
func (l *Locker) TryLock(ctx context.Context, name string) (*Lock, error) {
	if l == nil || l.client == nil {
		return &Lock{}, nil
	}

	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it is still ours. Expired locks release as a
// no-op.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil || k.client == nil {
		return nil
	}
	if err := k.client.Eval(ctx, releaseScript, []string{k.key}, k.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", k.key, err)
	}
	return nil
}
