package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
)

// Publisher implements the EventPublisher interface using NATS JetStream
type Publisher struct {
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewPublisher creates a new NATS event publisher
func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		js:     client.JetStream(),
		logger: logger.Named("publisher"),
	}
}

// PublishEvent publishes a domain event to JetStream. The event id is the
// message id so redelivered publishes are deduplicated.
func (p *Publisher) PublishEvent(ctx context.Context, event domainevents.Event) error {
	subject := Subject(event)

	data, err := json.Marshal(domainevents.NewMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID().String()))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", event.ID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
	)
	return nil
}

// Subject returns the subject an event is published on, for example
// download.job.DownloadCompleted or download.offline.OfflineEntryRemoved
func Subject(event domainevents.Event) string {
	kind := "job"
	if event.AggregateType() == "OfflineEntry" {
		kind = "offline"
	}
	return strings.Join([]string{SubjectPrefix, kind, event.EventType()}, ".")
}
