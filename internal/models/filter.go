package models

import (
	"fmt"
	"strings"
)

// RoomID identifies a chat. Telegram chat ids are signed 64-bit integers.
type RoomID int64

// Key returns the room id as it appears in the persisted JSON document.
func (r RoomID) Key() string { return fmt.Sprintf("%d", int64(r)) }

// FilterKind selects which payload of a FilterEntry is populated.
type FilterKind string

const (
	FilterText  FilterKind = "text"
	FilterMedia FilterKind = "media"
)

// MediaKind is the type of a stored media reply.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
	MediaSticker  MediaKind = "sticker"
)

// Valid reports whether k is one of the supported media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument, MediaAudio, MediaVoice, MediaSticker:
		return true
	}
	return false
}

// MediaRef points to a file already uploaded to the transport.
type MediaRef struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

// FilterEntry is the reply stored for one trigger.
// Exactly one of Content / Media is meaningful, selected by Kind.
type FilterEntry struct {
	Trigger string
	Kind    FilterKind
	Content string
	Media   *MediaRef
}

// NewTextEntry builds a text reply for trigger.
func NewTextEntry(trigger, content string) FilterEntry {
	return FilterEntry{Trigger: NormalizeTrigger(trigger), Kind: FilterText, Content: content}
}

// NewMediaEntry builds a media reply for trigger.
func NewMediaEntry(trigger string, ref MediaRef) FilterEntry {
	r := ref
	return FilterEntry{Trigger: NormalizeTrigger(trigger), Kind: FilterMedia, Media: &r}
}

// IsMedia reports whether the entry carries a media reference.
func (e FilterEntry) IsMedia() bool { return e.Kind == FilterMedia && e.Media != nil }

// NormalizeTrigger lower-cases a trigger the same way incoming text is lower-cased before matching.
func NormalizeTrigger(trigger string) string {
	return strings.ToLower(trigger)
}

// Member is a chat participant used to build greeting mentions.
type Member struct {
	ID        int64
	Username  string
	FirstName string
	IsBot     bool
}
