package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// releaseScript deletes the lease only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the lease still holds our token
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Init initializes the Redis client
func Init(url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}

	if password != "" {
		opts.Password = password
	}

	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}

	return nil
}

// SetClient sets the Redis client (used for testing)
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// Lease is a time-bounded exclusive lock held in Redis
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Locker hands out leases on a Redis client
type Locker struct {
	client *redis.Client
	prefix string
}

// NewLocker creates a locker; a nil client falls back to the package client
func NewLocker(c *redis.Client, prefix string) *Locker {
	return &Locker{client: c, prefix: prefix}
}

func (l *Locker) redisClient() *redis.Client {
	if l.client != nil {
		return l.client
	}
	return client
}

// TryAcquire attempts to take the lease named name for ttl.
// It returns (nil, nil) when another holder owns the lease.
func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	c := l.redisClient()
	if c == nil {
		return nil, errors.New("redis client not initialized")
	}
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: c, key: key, token: token}, nil
}

// Acquire is TryAcquire shaped for callers that only need the release func.
// The lease is renewed every ttl/3 until release is called, so work that
// outlives ttl keeps it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lease, err := l.TryAcquire(ctx, name, ttl)
	if err != nil || lease == nil {
		return nil, false, err
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		lease.keepAlive(renewCtx, ttl)
	}()

	release := func(ctx context.Context) error {
		stop()
		<-done
		return lease.Release(ctx)
	}
	return release, true, nil
}

func (l *Lease) keepAlive(ctx context.Context, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := l.Extend(ctx, ttl)
			if err == nil && !held {
				return
			}
		}
	}
}

// Extend resets the lease expiry to ttl. It reports false once the lease
// has expired or been taken over.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, nil
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release gives the lease back if it has not already expired or been taken over
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Key returns the Redis key backing the lease
func (l *Lease) Key() string {
	return l.key
}
