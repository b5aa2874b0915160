package eventstream

import "context"

// Publisher publishes save events to an event stream backend.
type Publisher interface {
	PublishSave(ctx context.Context, event *SavePersistedEvent) error
	Close() error
}
