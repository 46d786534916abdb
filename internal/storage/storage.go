// Package storage persists per-room filters and settings.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"filterbot/backend/internal/models"

	"github.com/rs/zerolog"
)

// ErrCorruptState is returned by Load when the backing file exists but can't be decoded.
var ErrCorruptState = errors.New("corrupt filter state")

// ErrInvalidMedia is returned by AddFilter for a media kind the store could not load back.
var ErrInvalidMedia = errors.New("invalid media type")

// FilterStorage is the filter store used by the command layer and the matcher.
type FilterStorage interface {
	AddFilter(room models.RoomID, trigger, responseText string, mediaKind models.MediaKind, fileID string) error
	RemoveFilter(room models.RoomID, trigger string) (bool, error)
	RemoveAllFilters(room models.RoomID) (bool, error)
	ListFilters(room models.RoomID) []models.FilterEntry
	GetRoomFilters(room models.RoomID) map[string]models.FilterEntry
}

// FileStore keeps all filters in memory and rewrites one JSON document on every mutation.
// Mutations are serialized; reads get copies and never observe a half-applied write.
type FileStore struct {
	path string
	log  zerolog.Logger

	mu    sync.RWMutex
	rooms map[models.RoomID]map[string]models.FilterEntry
}

var _ FilterStorage = (*FileStore)(nil)

// NewFileStore opens the store at path. An absent file yields an empty store;
// a file that fails to decode is reported as ErrCorruptState.
func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		log:   log.With().Str("component", "filter_store").Logger(),
		rooms: make(map[models.RoomID]map[string]models.FilterEntry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// record is one persisted filter. Text and media records have different shapes on disk.
type record struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MediaType string `json:"media_type"`
	FileID    string `json:"file_id"`
	Caption   string `json:"caption"`
}

type textRecord struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type mediaRecord struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	FileID    string `json:"file_id"`
	Caption   string `json:"caption"`
}

func (r record) MarshalJSON() ([]byte, error) {
	if r.Type == string(models.FilterMedia) {
		return json.Marshal(mediaRecord{Type: r.Type, MediaType: r.MediaType, FileID: r.FileID, Caption: r.Caption})
	}
	return json.Marshal(textRecord{Type: r.Type, Content: r.Content})
}

func toRecord(e models.FilterEntry) record {
	if e.IsMedia() {
		return record{
			Type:      string(models.FilterMedia),
			MediaType: string(e.Media.Kind),
			FileID:    e.Media.FileID,
			Caption:   e.Media.Caption,
		}
	}
	return record{Type: string(models.FilterText), Content: e.Content}
}

func fromRecord(trigger string, r record) (models.FilterEntry, error) {
	switch models.FilterKind(r.Type) {
	case models.FilterText:
		return models.NewTextEntry(trigger, r.Content), nil
	case models.FilterMedia:
		kind := models.MediaKind(r.MediaType)
		if !kind.Valid() || r.FileID == "" {
			return models.FilterEntry{}, fmt.Errorf("trigger %q: bad media record (type %q)", trigger, r.MediaType)
		}
		return models.NewMediaEntry(trigger, models.MediaRef{Kind: kind, FileID: r.FileID, Caption: r.Caption}), nil
	default:
		return models.FilterEntry{}, fmt.Errorf("trigger %q: unknown record type %q", trigger, r.Type)
	}
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info().Str("path", s.path).Msg("No filters file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc map[string]map[string]record
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}

	total := 0
	for key, triggers := range doc {
		id, err := roomKey(key)
		if err != nil {
			return fmt.Errorf("%w: room key %q is not an integer", ErrCorruptState, key)
		}
		room := make(map[string]models.FilterEntry, len(triggers))
		for trigger, rec := range triggers {
			entry, err := fromRecord(trigger, rec)
			if err != nil {
				return fmt.Errorf("%w: room %s: %v", ErrCorruptState, key, err)
			}
			room[entry.Trigger] = entry
			total++
		}
		s.rooms[id] = room
	}
	s.log.Info().Int("rooms", len(s.rooms)).Int("filters", total).Msg("Filters loaded")
	return nil
}

// persist writes the whole state. Caller holds s.mu for writing.
func (s *FileStore) persist() error {
	doc := make(map[string]map[string]record, len(s.rooms))
	for id, room := range s.rooms {
		triggers := make(map[string]record, len(room))
		for trigger, entry := range room {
			triggers[trigger] = toRecord(entry)
		}
		doc[id.Key()] = triggers
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}
	return WriteFileAtomic(s.path, data, 0o644)
}

// mutate applies fn to the room map and persists. If persisting fails the room is restored.
func (s *FileStore) mutate(id models.RoomID, fn func(room map[string]models.FilterEntry)) error {
	prev, existed := s.rooms[id]
	next := make(map[string]models.FilterEntry, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	fn(next)
	s.rooms[id] = next

	if err := s.persist(); err != nil {
		if existed {
			s.rooms[id] = prev
		} else {
			delete(s.rooms, id)
		}
		return err
	}
	return nil
}

// AddFilter stores (or overwrites) the reply for trigger. When both mediaKind and fileID are set the
// reply is a media entry captioned with responseText; otherwise it is a text entry.
func (s *FileStore) AddFilter(room models.RoomID, trigger, responseText string, mediaKind models.MediaKind, fileID string) error {
	if mediaKind != "" && !mediaKind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMedia, mediaKind)
	}

	var entry models.FilterEntry
	if mediaKind != "" && fileID != "" {
		entry = models.NewMediaEntry(trigger, models.MediaRef{Kind: mediaKind, FileID: fileID, Caption: responseText})
	} else {
		entry = models.NewTextEntry(trigger, responseText)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutate(room, func(m map[string]models.FilterEntry) { m[entry.Trigger] = entry }); err != nil {
		s.log.Error().Err(err).Int64("room", int64(room)).Str("trigger", entry.Trigger).Msg("Failed to persist filter")
		return err
	}
	return nil
}

// RemoveFilter deletes trigger from room and reports whether it existed.
// Nothing is written when the trigger is absent.
func (s *FileStore) RemoveFilter(room models.RoomID, trigger string) (bool, error) {
	trigger = models.NormalizeTrigger(trigger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room][trigger]; !ok {
		return false, nil
	}
	if err := s.mutate(room, func(m map[string]models.FilterEntry) { delete(m, trigger) }); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveAllFilters drops the room entry entirely and reports whether it held any filters.
// An empty room left behind by a read is discarded without rewriting the file.
func (s *FileStore) RemoveAllFilters(room models.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.rooms[room]
	if !ok {
		return false, nil
	}
	if len(prev) == 0 {
		delete(s.rooms, room)
		return false, nil
	}
	delete(s.rooms, room)
	if err := s.persist(); err != nil {
		s.rooms[room] = prev
		return false, err
	}
	return true, nil
}

// GetRoomFilters returns a copy of the room's filters, creating an empty room entry if absent.
func (s *FileStore) GetRoomFilters(room models.RoomID) map[string]models.FilterEntry {
	s.mu.RLock()
	filters, ok := s.rooms[room]
	if ok {
		out := copyRoom(filters)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if filters, ok = s.rooms[room]; !ok {
		filters = make(map[string]models.FilterEntry)
		s.rooms[room] = filters
	}
	return copyRoom(filters)
}

// ListFilters returns the room's filters. Order is unspecified.
func (s *FileStore) ListFilters(room models.RoomID) []models.FilterEntry {
	filters := s.GetRoomFilters(room)
	out := make([]models.FilterEntry, 0, len(filters))
	for _, e := range filters {
		out = append(out, e)
	}
	return out
}

// Rooms returns the ids of all rooms currently held by the store.
func (s *FileStore) Rooms() []models.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

func copyRoom(in map[string]models.FilterEntry) map[string]models.FilterEntry {
	out := make(map[string]models.FilterEntry, len(in))
	for k, v := range in {
		if v.Media != nil {
			ref := *v.Media
			v.Media = &ref
		}
		out[k] = v
	}
	return out
}
