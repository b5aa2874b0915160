package coordinator

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/eventstream"
)

// Initializer runs once against a fresh derived context after the store is
// loaded. Its changes are saved through to the store before New returns.
type Initializer func(ctx context.Context, c *editing.Context) error

type options struct {
	logger         *slog.Logger
	publisher      eventstream.Publisher
	initializers   []Initializer
	saveQueueSize  uint
	asyncQueueSize uint
}

// Option configures a Coordinator.
type Option func(*options)

// WithLogger sets the logger used by the coordinator and every context it
// creates.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPublisher publishes an event for every save that reaches the store.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithInitializer adds a post-load initializer. Initializers run in the
// order they were added.
func WithInitializer(fn Initializer) Option {
	return func(o *options) {
		o.initializers = append(o.initializers, fn)
	}
}

// WithSaveQueueSize sets the capacity of the root save queue.
func WithSaveQueueSize(n uint) Option {
	return func(o *options) {
		o.saveQueueSize = n
	}
}

// WithAsyncQueueSize sets the capacity of each non-root context's
// asynchronous save queue.
func WithAsyncQueueSize(n uint) Option {
	return func(o *options) {
		o.asyncQueueSize = n
	}
}
