package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"filterbot/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsStorage holds per-room bot settings.
type SettingsStorage interface {
	SelfDestructSeconds(room models.RoomID) (int, error)
	SetSelfDestructSeconds(room models.RoomID, seconds int) error
}

// RoomSettings is one room's settings row.
type RoomSettings struct {
	RoomID              int64     `gorm:"primaryKey;autoIncrement:false" json:"-"`
	SelfDestructSeconds int       `gorm:"not null;default:0" json:"self_destruct_time"`
	UpdatedAt           time.Time `json:"-"`
}

// FileSettingsStore keeps settings in a JSON document keyed by room id.
type FileSettingsStore struct {
	path       string
	defaultTTL int

	mu    sync.Mutex
	rooms map[string]RoomSettings
}

var _ SettingsStorage = (*FileSettingsStore)(nil)

// NewFileSettingsStore opens path. Rooms without an entry report defaultSeconds.
func NewFileSettingsStore(path string, defaultSeconds int) (*FileSettingsStore, error) {
	s := &FileSettingsStore{
		path:       path,
		defaultTTL: defaultSeconds,
		rooms:      make(map[string]RoomSettings),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.rooms); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}
	return s, nil
}

func (s *FileSettingsStore) SelfDestructSeconds(room models.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.rooms[room.Key()]; ok {
		return rs.SelfDestructSeconds, nil
	}
	return s.defaultTTL, nil
}

func (s *FileSettingsStore) SetSelfDestructSeconds(room models.RoomID, seconds int) error {
	if seconds < 0 {
		seconds = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := room.Key()
	prev, existed := s.rooms[key]
	s.rooms[key] = RoomSettings{RoomID: int64(room), SelfDestructSeconds: seconds}

	data, err := json.MarshalIndent(s.rooms, "", "  ")
	if err == nil {
		err = WriteFileAtomic(s.path, data, 0o644)
	}
	if err != nil {
		if existed {
			s.rooms[key] = prev
		} else {
			delete(s.rooms, key)
		}
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GormSettingsStore keeps settings in a SQL table via gorm.
type GormSettingsStore struct {
	DB         *gorm.DB
	defaultTTL int
}

var _ SettingsStorage = (*GormSettingsStore)(nil)

// NewGormSettingsStore migrates the settings table and returns a store on db.
func NewGormSettingsStore(db *gorm.DB, defaultSeconds int) (*GormSettingsStore, error) {
	if err := db.AutoMigrate(&RoomSettings{}); err != nil {
		return nil, fmt.Errorf("failed to migrate room settings: %w", err)
	}
	return &GormSettingsStore{DB: db, defaultTTL: defaultSeconds}, nil
}

func (s *GormSettingsStore) SelfDestructSeconds(room models.RoomID) (int, error) {
	var rs RoomSettings
	err := s.DB.Where("room_id = ?", int64(room)).First(&rs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultTTL, nil
	}
	if err != nil {
		return s.defaultTTL, err
	}
	return rs.SelfDestructSeconds, nil
}

func (s *GormSettingsStore) SetSelfDestructSeconds(room models.RoomID, seconds int) error {
	if seconds < 0 {
		seconds = 0
	}
	rs := RoomSettings{RoomID: int64(room), SelfDestructSeconds: seconds}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"self_destruct_seconds", "updated_at"}),
	}).Create(&rs).Error
}

// roomKey is the inverse of models.RoomID.Key.
func roomKey(key string) (models.RoomID, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	return models.RoomID(id), err
}
