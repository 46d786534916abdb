package telegram

import (
	"sync"

	"filterbot/backend/internal/models"
)

// Roster remembers the most recent distinct human senders per chat. Telegram has no API to
// list ordinary members, so this is the best-effort source for greeting mentions.
type Roster struct {
	limit int

	mu    sync.Mutex
	rooms map[models.RoomID][]models.Member
}

func NewRoster(limit int) *Roster {
	return &Roster{limit: limit, rooms: make(map[models.RoomID][]models.Member)}
}

// Observe moves m to the front of room's list, evicting the oldest sender past the limit.
func (r *Roster) Observe(room models.RoomID, m models.Member) {
	if m.IsBot || m.ID == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.rooms[room]
	for i, existing := range list {
		if existing.ID == m.ID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	list = append([]models.Member{m}, list...)
	if len(list) > r.limit {
		list = list[:r.limit]
	}
	r.rooms[room] = list
}

// Recent returns room's senders, most recent first.
func (r *Roster) Recent(room models.RoomID) []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Member(nil), r.rooms[room]...)
}
