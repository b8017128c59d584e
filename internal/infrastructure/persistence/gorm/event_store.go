package gorm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/narwhalmedia/narwhal-player/internal/domain/events"
)

// EventStore journals domain events to the database. It is an
// events.EventPublisher, so it can stand in for a broker.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore creates a new GORM event store
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

// PublishEvent persists a single domain event
func (s *EventStore) PublishEvent(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	model := EventModel{
		ID:            event.ID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Version:       event.Version(),
		Data:          data,
		Metadata:      metadata,
		CreatedAt:     event.CreatedAt(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// History returns the events of an aggregate, oldest first. limit <= 0
// returns all of them.
func (s *EventStore) History(ctx context.Context, aggregateID uuid.UUID, limit int) ([]events.Record, error) {
	var models []EventModel
	q := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	records := make([]events.Record, len(models))
	for i, m := range models {
		records[i] = events.Record{
			ID:            m.ID,
			AggregateID:   m.AggregateID,
			AggregateType: m.AggregateType,
			EventType:     m.EventType,
			Version:       m.Version,
			Data:          json.RawMessage(m.Data),
			CreatedAt:     m.CreatedAt,
		}
	}
	return records, nil
}
