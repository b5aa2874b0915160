package eventstream

import "errors"

// ErrNilSaveEvent indicates a nil save event payload was provided to a publisher.
var ErrNilSaveEvent = errors.New("nil save event")
