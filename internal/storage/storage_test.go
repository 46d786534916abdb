package storage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"filterbot/backend/internal/models"
	"filterbot/backend/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room = models.RoomID(-1001234567890)

func newStore(t *testing.T) (*storage.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat_filters.json")
	s, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	return s, path
}

func TestFileStore_AbsentFileStartsEmpty(t *testing.T) {
	s, path := newStore(t)

	assert.Empty(t, s.ListFilters(room))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "reads must not create the file")
}

func TestFileStore_CorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_filters.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := storage.NewFileStore(path, zerolog.Nop())
	assert.ErrorIs(t, err, storage.ErrCorruptState)
}

func TestFileStore_UnknownRecordTypeIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_filters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1":{"hi":{"type":"gif"}}}`), 0o644))

	_, err := storage.NewFileStore(path, zerolog.Nop())
	assert.ErrorIs(t, err, storage.ErrCorruptState)
}

func TestFileStore_UnknownMediaKindIsRejected(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.AddFilter(room, "hi", "hello", "", ""))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = s.AddFilter(room, "x", "cap", models.MediaKind("gif"), "fid")
	assert.ErrorIs(t, err, storage.ErrInvalidMedia)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NotContains(t, s.GetRoomFilters(room), "x")

	reloaded, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, reloaded.ListFilters(room), 1)
}

func TestFileStore_RoundTripText(t *testing.T) {
	s, path := newStore(t)

	require.NoError(t, s.AddFilter(room, "hello", "hi!", "", ""))

	reloaded, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)

	filters := reloaded.GetRoomFilters(room)
	require.Contains(t, filters, "hello")
	entry := filters["hello"]
	assert.Equal(t, models.FilterText, entry.Kind)
	assert.Equal(t, "hi!", entry.Content)
	assert.Nil(t, entry.Media)
}

func TestFileStore_PersistedFormat(t *testing.T) {
	s, path := newStore(t)

	require.NoError(t, s.AddFilter(room, "Cat", "meow", models.MediaPhoto, "AgACAgIAAx"))
	require.NoError(t, s.AddFilter(room, "bye", "", "", ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	roomDoc := doc["-1001234567890"]
	require.NotNil(t, roomDoc)
	assert.Equal(t, map[string]any{
		"type":       "media",
		"media_type": "photo",
		"file_id":    "AgACAgIAAx",
		"caption":    "meow",
	}, roomDoc["cat"])
	assert.Equal(t, map[string]any{"type": "text", "content": ""}, roomDoc["bye"])
}

func TestFileStore_MediaEntryHasNoTextContent(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.AddFilter(room, "dance", "moves", models.MediaVideo, "BAACAgIAAx"))
	require.NoError(t, s.AddFilter(room, "plain", "just text", models.MediaVideo, ""))

	reloaded, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	filters := reloaded.GetRoomFilters(room)

	media := filters["dance"]
	assert.Equal(t, models.FilterMedia, media.Kind)
	assert.Empty(t, media.Content)
	require.NotNil(t, media.Media)
	assert.Equal(t, models.MediaVideo, media.Media.Kind)
	assert.Equal(t, "moves", media.Media.Caption)

	text := filters["plain"]
	assert.Equal(t, models.FilterText, text.Kind)
	assert.Nil(t, text.Media)
	assert.Equal(t, "just text", text.Content)
}

func TestFileStore_TriggerIsLowerCasedAndLastWriteWins(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.AddFilter(room, "Hello", "first", "", ""))
	require.NoError(t, s.AddFilter(room, "HELLO", "second", "", ""))

	filters := s.ListFilters(room)
	require.Len(t, filters, 1)
	assert.Equal(t, "hello", filters[0].Trigger)
	assert.Equal(t, "second", filters[0].Content)
}

func TestFileStore_RemoveMissingLeavesFileUntouched(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.AddFilter(room, "keep", "me", "", ""))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	removed, err := s.RemoveFilter(room, "nope")
	require.NoError(t, err)
	assert.False(t, removed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_RemoveFilter(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.AddFilter(room, "brb", "be right back", "", ""))

	removed, err := s.RemoveFilter(room, "BRB")
	require.NoError(t, err)
	assert.True(t, removed)

	reloaded, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, reloaded.ListFilters(room))
}

func TestFileStore_RemoveAllFilters(t *testing.T) {
	s, _ := newStore(t)

	removed, err := s.RemoveAllFilters(room)
	require.NoError(t, err)
	assert.False(t, removed, "no filters yet")

	// A read materializes an empty room; it still has nothing to remove.
	_ = s.GetRoomFilters(room)
	removed, err = s.RemoveAllFilters(room)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.AddFilter(room, "a", "1", "", ""))
	require.NoError(t, s.AddFilter(room, "b", "2", "", ""))
	removed, err = s.RemoveAllFilters(room)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, s.ListFilters(room))
}

func TestFileStore_RoomsAreIsolated(t *testing.T) {
	s, _ := newStore(t)
	other := models.RoomID(42)

	require.NoError(t, s.AddFilter(room, "x", "room one", "", ""))
	require.NoError(t, s.AddFilter(other, "x", "room two", "", ""))

	_, err := s.RemoveAllFilters(room)
	require.NoError(t, err)

	filters := s.GetRoomFilters(other)
	assert.Equal(t, "room two", filters["x"].Content)
}

func TestFileStore_FailedWriteKeepsMemoryConsistent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-dir", "chat_filters.json")
	s, err := storage.NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)

	err = s.AddFilter(room, "ghost", "boo", "", "")
	assert.Error(t, err)
	assert.NotContains(t, s.GetRoomFilters(room), "ghost")
}

func TestFileStore_ReturnedMapsAreCopies(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.AddFilter(room, "pic", "cap", models.MediaPhoto, "file"))

	filters := s.GetRoomFilters(room)
	delete(filters, "pic")
	filters["injected"] = models.NewTextEntry("injected", "x")

	fresh := s.GetRoomFilters(room)
	assert.Contains(t, fresh, "pic")
	assert.NotContains(t, fresh, "injected")
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, storage.WriteFileAtomic(path, []byte(`{"a":1}`), 0o644))
	require.NoError(t, storage.WriteFileAtomic(path, []byte(`{"a":2}`), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))
}
