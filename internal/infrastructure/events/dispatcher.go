package events

import (
	"context"
	"errors"
	"fmt"

	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
)

// Dispatcher publishes every event to each of its publishers in order.
// A failing publisher does not stop the others.
type Dispatcher struct {
	publishers []domainevents.EventPublisher
}

// NewDispatcher creates a dispatcher over the given publishers; nil
// publishers are skipped
func NewDispatcher(publishers ...domainevents.EventPublisher) *Dispatcher {
	d := &Dispatcher{}
	for _, p := range publishers {
		if p != nil {
			d.publishers = append(d.publishers, p)
		}
	}
	return d
}

// PublishEvent implements domainevents.EventPublisher
func (d *Dispatcher) PublishEvent(ctx context.Context, event domainevents.Event) error {
	var errs []error
	for _, p := range d.publishers {
		if err := p.PublishEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %T: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
