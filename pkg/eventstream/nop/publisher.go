package nop

import (
	"context"

	"github.com/papercomputeco/graphstack/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishSave validates input and otherwise does nothing.
func (p *Publisher) PublishSave(_ context.Context, event *eventstream.SavePersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilSaveEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
