// Package matcher resolves incoming chat text to a stored filter reply.
package matcher

import (
	"sort"
	"strings"

	"filterbot/backend/internal/models"
)

// RoomFilters is the read side of the filter store.
type RoomFilters interface {
	GetRoomFilters(room models.RoomID) map[string]models.FilterEntry
}

// Engine picks at most one reply per message.
//
// Triggers are matched as case-insensitive substrings. When several triggers occur in the same
// message the longest one wins, and equal lengths are broken by byte order, so the result does not
// depend on map iteration order or on how the store was loaded.
type Engine struct {
	Filters RoomFilters
}

// NewEngine returns an Engine reading from filters.
func NewEngine(filters RoomFilters) *Engine {
	return &Engine{Filters: filters}
}

// Resolve returns the reply for text in room, if any trigger matches.
func (e *Engine) Resolve(room models.RoomID, text string) (models.FilterEntry, bool) {
	if text == "" {
		return models.FilterEntry{}, false
	}
	filters := e.Filters.GetRoomFilters(room)
	if len(filters) == 0 {
		return models.FilterEntry{}, false
	}

	lowered := strings.ToLower(text)
	for _, trigger := range orderedTriggers(filters) {
		if strings.Contains(lowered, trigger) {
			return filters[trigger], true
		}
	}
	return models.FilterEntry{}, false
}

func orderedTriggers(filters map[string]models.FilterEntry) []string {
	triggers := make([]string, 0, len(filters))
	for t := range filters {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool {
		if len(triggers[i]) != len(triggers[j]) {
			return len(triggers[i]) > len(triggers[j])
		}
		return triggers[i] < triggers[j]
	})
	return triggers
}
