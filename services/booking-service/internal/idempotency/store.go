// Package idempotency replays the first response recorded for an
// Idempotency-Key so retried bookings do not create duplicates.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Response is what gets replayed.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

type Store interface {
	Get(ctx context.Context, key string) (Response, bool, error)
	Put(ctx context.Context, key string, resp Response) error
}

func Key(tenantID, idempotencyKey string) string {
	return tenantID + ":" + strings.TrimSpace(idempotencyKey)
}

type memoryEntry struct {
	resp    Response
	expires time.Time
}

// Memory keeps responses in process for ttl.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (Response, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Response{}, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return Response{}, false, nil
	}
	return e.resp, true, nil
}

func (m *Memory) Put(_ context.Context, key string, resp Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{resp: resp, expires: now.Add(m.ttl)}
	return nil
}

// Redis shares recorded responses across replicas.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "idem"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (Response, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, false, err
	}
	return resp, true, nil
}

// Put keeps the first recorded response if two writers race.
func (r *Redis) Put(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.rdb.SetNX(ctx, r.prefix+":"+key, raw, r.ttl).Err()
}
