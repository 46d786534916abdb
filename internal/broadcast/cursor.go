package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"filterbot/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// CursorStore keeps the last greeting time per room.
type CursorStore interface {
	LastFired(ctx context.Context, room models.RoomID) (time.Time, bool, error)
	RecordFired(ctx context.Context, room models.RoomID, at time.Time) error
}

// MemoryCursorStore is the in-process CursorStore. Cursors are lost on restart.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[models.RoomID]time.Time
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[models.RoomID]time.Time)}
}

func (m *MemoryCursorStore) LastFired(_ context.Context, room models.RoomID) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.cursors[room]
	return t, ok, nil
}

func (m *MemoryCursorStore) RecordFired(_ context.Context, room models.RoomID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[room] = at
	return nil
}

// RedisCursorStore keeps cursors in Redis so restarts don't re-greet rooms.
// Keys expire after TTL; an expired key just means the room may be greeted again.
type RedisCursorStore struct {
	Redis  *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisCursorStore(rdb *redis.Client, ttl time.Duration) *RedisCursorStore {
	return &RedisCursorStore{Redis: rdb, Prefix: "greeting:last:", TTL: ttl}
}

func (r *RedisCursorStore) key(room models.RoomID) string {
	return r.Prefix + room.Key()
}

func (r *RedisCursorStore) LastFired(ctx context.Context, room models.RoomID) (time.Time, bool, error) {
	val, err := r.Redis.Get(ctx, r.key(room)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad cursor value %q for room %d: %w", val, int64(room), err)
	}
	return time.UnixMilli(ms), true, nil
}

func (r *RedisCursorStore) RecordFired(ctx context.Context, room models.RoomID, at time.Time) error {
	return r.Redis.Set(ctx, r.key(room), strconv.FormatInt(at.UnixMilli(), 10), r.TTL).Err()
}
