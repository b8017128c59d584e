package gorm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// OfflineEntryModel is one row of the offline catalog. The item and
// source snapshots are stored as JSON so the catalog can be used without
// the server.
type OfflineEntryModel struct {
	ItemID    string `gorm:"primaryKey"`
	Kind      string `gorm:"not null"`
	Path      string `gorm:"not null"`
	Size      int64
	Snapshot  []byte    `gorm:"not null"`
	StoredAt  time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name
func (OfflineEntryModel) TableName() string {
	return "offline_entries"
}

// snapshot is the JSON payload of an offline row
type snapshot struct {
	Item   media.Item   `json:"item"`
	Source media.Source `json:"source"`
}

// EventModel is one journaled domain event
type EventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null;index"`
	AggregateType string    `gorm:"not null;index"`
	EventType     string    `gorm:"not null;index"`
	Version       int       `gorm:"not null;default:1"`
	Data          []byte    `gorm:"not null"`
	Metadata      []byte
	CreatedAt     time.Time `gorm:"not null;index"`
}

// TableName specifies the table name
func (EventModel) TableName() string {
	return "events"
}

func toOfflineModel(e *download.OfflineEntry) (*OfflineEntryModel, error) {
	data, err := json.Marshal(snapshot{Item: e.Item, Source: e.Source})
	if err != nil {
		return nil, fmt.Errorf("failed to encode offline snapshot: %w", err)
	}
	return &OfflineEntryModel{
		ItemID:   e.ItemID,
		Kind:     string(e.Kind),
		Path:     e.Path,
		Size:     e.Size,
		Snapshot: data,
		StoredAt: e.StoredAt,
	}, nil
}

func (m *OfflineEntryModel) toDomain() (*download.OfflineEntry, error) {
	var snap snapshot
	if err := json.Unmarshal(m.Snapshot, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode offline snapshot: %w", err)
	}
	kind, err := download.ParseKind(m.Kind)
	if err != nil {
		return nil, err
	}
	return &download.OfflineEntry{
		ItemID:   m.ItemID,
		Item:     snap.Item,
		Source:   snap.Source,
		Path:     m.Path,
		Size:     m.Size,
		Kind:     kind,
		StoredAt: m.StoredAt,
	}, nil
}
