// Package handler serves the read-only admin HTTP API.
package handler

import (
	"net/http"
	"sort"
	"strconv"

	"filterbot/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// FilterReader is the part of the filter store the API reads.
type FilterReader interface {
	ListFilters(room models.RoomID) []models.FilterEntry
	Rooms() []models.RoomID
}

// SettingsReader is the part of the settings store the API reads.
type SettingsReader interface {
	SelfDestructSeconds(room models.RoomID) (int, error)
}

// Handler holds the stores the API exposes.
type Handler struct {
	Filters  FilterReader
	Settings SettingsReader

	secret []byte
	log    zerolog.Logger
}

func NewHandler(filters FilterReader, settings SettingsReader, secret string, log zerolog.Logger) *Handler {
	return &Handler{
		Filters:  filters,
		Settings: settings,
		secret:   []byte(secret),
		log:      log.With().Str("component", "admin_api").Logger(),
	}
}

type filterDTO struct {
	Trigger   string `json:"trigger"`
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

func toDTO(e models.FilterEntry) filterDTO {
	out := filterDTO{Trigger: e.Trigger, Type: string(e.Kind)}
	if e.IsMedia() {
		out.MediaType = string(e.Media.Kind)
		out.FileID = e.Media.FileID
		out.Caption = e.Media.Caption
	} else {
		out.Content = e.Content
	}
	return out
}

// Router builds the gin engine. Everything except /healthz requires a token.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)

	admin := r.Group("/", h.RequireToken())
	admin.GET("/rooms", h.ListRooms)
	admin.GET("/rooms/:room/filters", h.ListFilters)
	admin.GET("/rooms/:room/settings", h.GetSettings)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func roomParam(c *gin.Context) (models.RoomID, bool) {
	id, err := strconv.ParseInt(c.Param("room"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room must be an integer chat id"})
		return 0, false
	}
	return models.RoomID(id), true
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms := h.Filters.Rooms()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListFilters returns a room's filters sorted by trigger. Unknown rooms yield an empty list.
func (h *Handler) ListFilters(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	entries := h.Filters.ListFilters(room)
	out := make([]filterDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDTO(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trigger < out[j].Trigger })
	c.JSON(http.StatusOK, gin.H{"room": room, "filters": out})
}

func (h *Handler) GetSettings(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	secs, err := h.Settings.SelfDestructSeconds(room)
	if err != nil {
		h.log.Error().Err(err).Int64("room", int64(room)).Msg("Failed to read settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "self_destruct_time": secs})
}
