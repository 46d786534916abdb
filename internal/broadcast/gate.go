// Package broadcast decides when the scheduled morning greeting may be sent to a room.
package broadcast

import (
	"context"
	"time"

	"filterbot/backend/internal/config"
	"filterbot/backend/internal/models"

	"github.com/rs/zerolog"
)

// Gate allows one greeting per room per cooldown, and only inside the hour window.
// ShouldFire never mutates; callers record an attempt with RecordFired. Until they do,
// every qualifying message asks again, which is how a failed send gets retried.
type Gate struct {
	Cursors     CursorStore
	Location    *time.Location
	WindowStart int
	WindowEnd   int
	Cooldown    time.Duration

	log zerolog.Logger
}

// NewGate returns a Gate with the default morning window in the process's local time zone.
func NewGate(cursors CursorStore, log zerolog.Logger) *Gate {
	return &Gate{
		Cursors:     cursors,
		Location:    time.Local,
		WindowStart: config.GreetingWindowStart,
		WindowEnd:   config.GreetingWindowEnd,
		Cooldown:    config.GreetingCooldown,
		log:         log.With().Str("component", "broadcast_gate").Logger(),
	}
}

// InWindow reports whether now's local hour is within [WindowStart, WindowEnd).
func (g *Gate) InWindow(now time.Time) bool {
	loc := g.Location
	if loc == nil {
		loc = time.Local
	}
	h := now.In(loc).Hour()
	return h >= g.WindowStart && h < g.WindowEnd
}

// ShouldFire reports whether a greeting may be sent to room at now.
// A cursor store error is treated as "not now".
func (g *Gate) ShouldFire(ctx context.Context, room models.RoomID, now time.Time) bool {
	if !g.InWindow(now) {
		return false
	}
	last, ok, err := g.Cursors.LastFired(ctx, room)
	if err != nil {
		g.log.Warn().Err(err).Int64("room", int64(room)).Msg("Failed to read greeting cursor")
		return false
	}
	if !ok {
		return true
	}
	return now.Sub(last) >= g.Cooldown
}

// RecordFired stores now as the room's last greeting time.
func (g *Gate) RecordFired(ctx context.Context, room models.RoomID, now time.Time) {
	if err := g.Cursors.RecordFired(ctx, room, now); err != nil {
		g.log.Error().Err(err).Int64("room", int64(room)).Msg("Failed to record greeting cursor")
	}
}
