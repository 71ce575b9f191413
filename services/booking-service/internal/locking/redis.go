package locking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("locking: timed out waiting for calendar lock")

// releaseScript deletes the lease only if it still carries our token, so a
// holder whose lease expired cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock shared by all replicas. A lease expires after TTL even
// if the holder dies without unlocking.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *slog.Logger
}

type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
}

func NewRedis(rdb *redis.Client, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 3 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	opts.Prefix = strings.TrimSpace(opts.Prefix)
	if opts.Prefix == "" {
		opts.Prefix = "lock"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL, wait: opts.Wait, poll: opts.Poll, logger: logger}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	full := r.key(key)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(waitCtx, full, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if ok {
			return func() { r.unlock(full, token) }, nil
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrLockTimeout
		}
	}
}

func (r *Redis) unlock(key, token string) {
	// Release even when the request context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
		r.logger.Warn("calendar lock release failed", "err", err, "key", key)
	}
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}
