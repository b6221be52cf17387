package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared Redis client used by the queue, the
// scheduler leases and the rate limiter.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds dials, reads, writes and health pings. Defaults to 1s.
	Timeout time.Duration
}

// Redis holds the shared client.
type Redis struct {
	Client  *redis.Client
	timeout time.Duration
}

// NewRedis builds a client; connections are made lazily on first use.
func NewRedis(opts RedisOptions) *Redis {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	return &Redis{Client: client, timeout: opts.Timeout}
}

// Ping round-trips to the server within the client timeout. A ping that runs
// out of time reports ErrTimeout.
func (r *Redis) Ping(ctx context.Context) error {
	return Exec(ctx, r.timeout, func(ctx context.Context) error {
		return r.Client.Ping(ctx).Err()
	})
}

// Healthy is Ping as a health check.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Ping(ctx) == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
