package broadcast_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"filterbot/backend/internal/broadcast"
	"filterbot/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const room = models.RoomID(-42)

var kolkata = time.FixedZone("IST", 5*3600+1800)

func at(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, kolkata)
}

func newGate() *broadcast.Gate {
	g := broadcast.NewGate(broadcast.NewMemoryCursorStore(), zerolog.Nop())
	g.Location = kolkata
	return g
}

func TestGate_FirstCallInWindow(t *testing.T) {
	g := newGate()
	assert.True(t, g.ShouldFire(context.Background(), room, at(1, 7, 0)))
}

func TestGate_OutsideWindow(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	assert.False(t, g.ShouldFire(ctx, room, at(1, 11, 0)))
	assert.False(t, g.ShouldFire(ctx, room, at(1, 5, 59)))
	assert.False(t, g.ShouldFire(ctx, room, at(1, 10, 0)), "window end is exclusive")
	assert.True(t, g.ShouldFire(ctx, room, at(1, 6, 0)), "window start is inclusive")
	assert.True(t, g.ShouldFire(ctx, room, at(1, 9, 59)))
}

func TestGate_ShouldFireDoesNotMutate(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	assert.True(t, g.ShouldFire(ctx, room, at(1, 7, 0)))
	assert.True(t, g.ShouldFire(ctx, room, at(1, 7, 5)), "nothing recorded, still allowed")
}

func TestGate_CooldownAfterRecord(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	g.RecordFired(ctx, room, at(1, 7, 0))
	assert.False(t, g.ShouldFire(ctx, room, at(1, 8, 0)))
	assert.False(t, g.ShouldFire(ctx, room, at(2, 6, 30)), "less than 24h later")
	assert.True(t, g.ShouldFire(ctx, room, at(2, 7, 0)))
	assert.True(t, g.ShouldFire(ctx, room, at(3, 6, 0)))
}

func TestGate_RoomsAreIndependent(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	g.RecordFired(ctx, room, at(1, 7, 0))
	assert.True(t, g.ShouldFire(ctx, models.RoomID(1), at(1, 7, 30)))
}

type failingCursors struct{ mock.Mock }

func (f *failingCursors) LastFired(ctx context.Context, room models.RoomID) (time.Time, bool, error) {
	args := f.Called(room)
	return time.Time{}, false, args.Error(0)
}

func (f *failingCursors) RecordFired(ctx context.Context, room models.RoomID, at time.Time) error {
	return f.Called(room, at).Error(0)
}

func TestGate_StoreErrorMeansNo(t *testing.T) {
	cursors := new(failingCursors)
	cursors.On("LastFired", room).Return(errors.New("connection refused"))
	cursors.On("RecordFired", room, mock.Anything).Return(errors.New("connection refused"))
	g := broadcast.NewGate(cursors, zerolog.Nop())
	g.Location = kolkata

	assert.False(t, g.ShouldFire(context.Background(), room, at(1, 7, 0)))
	assert.NotPanics(t, func() { g.RecordFired(context.Background(), room, at(1, 7, 0)) })
	cursors.AssertExpectations(t)
}

// Runs only with a reachable Redis: TEST_REDIS_ADDR=localhost:6379
func TestRedisCursorStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	store := broadcast.NewRedisCursorStore(rdb, time.Minute)
	store.Prefix = "test:greeting:" + time.Now().Format("150405.000") + ":"

	_, ok, err := store.LastFired(ctx, room)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, store.RecordFired(ctx, room, now))
	got, ok, err := store.LastFired(ctx, room)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, now.Equal(got))
}
