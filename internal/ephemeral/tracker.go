// Package ephemeral deletes bot-sent messages after a per-message delay.
package ephemeral

import (
	"context"
	"math"
	"sync"
	"time"

	"filterbot/backend/internal/models"

	"github.com/rs/zerolog"
)

// Deleter removes a message from a room. Implemented by the transport.
type Deleter interface {
	DeleteMessage(ctx context.Context, room models.RoomID, messageID int) error
}

// MaxDelaySeconds is the largest delay Schedule accepts; longer ones overflow time.Duration.
const MaxDelaySeconds = math.MaxInt64 / int64(time.Second)

// Key identifies a message. Message ids are only unique within a room.
type Key struct {
	Room      models.RoomID
	MessageID int
}

// Pending describes a scheduled deletion.
type Pending struct {
	Key
	ScheduledAt time.Time
	Delay       time.Duration

	timer     *time.Timer
	cancelled bool
}

// Tracker owns at most one live deletion timer per message.
type Tracker struct {
	deleter Deleter
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[Key]*Pending
	wg      sync.WaitGroup
}

// NewTracker returns a Tracker that deletes through d.
func NewTracker(d Deleter, log zerolog.Logger) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		deleter: d,
		log:     log.With().Str("component", "self_destruct").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[Key]*Pending),
	}
}

// Schedule deletes the message after delaySeconds. Zero or negative delays do nothing.
func (t *Tracker) Schedule(room models.RoomID, messageID int, delaySeconds int) {
	if delaySeconds <= 0 {
		return
	}
	if int64(delaySeconds) > MaxDelaySeconds {
		t.log.Warn().Int64("room", int64(room)).Int("message_id", messageID).Int("delay_seconds", delaySeconds).
			Msg("Self-destruct delay out of range, not scheduling")
		return
	}
	t.ScheduleAfter(room, messageID, time.Duration(delaySeconds)*time.Second)
}

// ScheduleAfter is Schedule with an arbitrary duration. Any earlier timer for the same
// message is cancelled first.
func (t *Tracker) ScheduleAfter(room models.RoomID, messageID int, delay time.Duration) {
	if delay <= 0 {
		return
	}
	key := Key{Room: room, MessageID: messageID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return
	}
	if prev, ok := t.pending[key]; ok {
		t.stopLocked(prev)
	}

	p := &Pending{Key: key, ScheduledAt: time.Now(), Delay: delay}
	t.wg.Add(1)
	p.timer = time.AfterFunc(delay, func() { t.fire(p) })
	t.pending[key] = p
}

// Cancel drops the timer for a message. Unknown or already-fired messages are ignored.
func (t *Tracker) Cancel(room models.RoomID, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[Key{Room: room, MessageID: messageID}]; ok {
		t.stopLocked(p)
		delete(t.pending, p.Key)
	}
}

// stopLocked marks p cancelled. If its timer had not started, the wait group slot is released
// here; otherwise fire sees the flag and releases it.
func (t *Tracker) stopLocked(p *Pending) {
	p.cancelled = true
	if p.timer.Stop() {
		t.wg.Done()
	}
}

func (t *Tracker) fire(p *Pending) {
	defer t.wg.Done()

	t.mu.Lock()
	if p.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	err := t.deleter.DeleteMessage(t.ctx, p.Room, p.MessageID)

	t.mu.Lock()
	if cur, ok := t.pending[p.Key]; ok && cur == p {
		delete(t.pending, p.Key)
	}
	t.mu.Unlock()

	if err != nil {
		t.log.Warn().Err(err).
			Int64("room", int64(p.Room)).
			Int("message_id", p.MessageID).
			Msg("Could not self-destruct message")
		return
	}
	t.log.Debug().
		Int64("room", int64(p.Room)).
		Int("message_id", p.MessageID).
		Dur("delay", p.Delay).
		Msg("Message self-destructed")
}

// Len returns the number of live timers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Scheduled reports whether a timer is live for the message.
func (t *Tracker) Scheduled(room models.RoomID, messageID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[Key{Room: room, MessageID: messageID}]
	return ok
}

// Stop cancels every pending timer and waits for in-flight deletions to return.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.cancel()
	for key, p := range t.pending {
		t.stopLocked(p)
		delete(t.pending, key)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
