package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/store/inmemory"
)

// ErrInjected is the error MockStore fails writes with.
var ErrInjected = errors.New("injected store failure")

// MockStore is an in-memory store whose writes can be made to fail or to
// block, and which records the batches it was given.
type MockStore struct {
	*inmemory.Driver

	mu sync.Mutex

	// Batches accumulates every batch passed to WriteBatch.
	Batches []store.Batch

	failWrites bool
	hold       chan struct{}
	entered    chan struct{}
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{Driver: inmemory.NewDriver()}
}

// FailWrites makes every following WriteBatch fail with a *store.WriteError
// wrapping ErrInjected until called with false.
func (m *MockStore) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// HoldWrites makes the next WriteBatch block. entered is closed once the
// write is blocked; calling release lets it continue.
func (m *MockStore) HoldWrites() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hold = make(chan struct{})
	m.entered = make(chan struct{})
	hold := m.hold

	var once sync.Once
	return m.entered, func() { once.Do(func() { close(hold) }) }
}

func (m *MockStore) WriteBatch(ctx context.Context, batch store.Batch) error {
	m.mu.Lock()
	hold, entered := m.hold, m.entered
	m.hold, m.entered = nil, nil
	fail := m.failWrites
	m.Batches = append(m.Batches, batch)
	m.mu.Unlock()

	if hold != nil {
		close(entered)
		<-hold
	}
	if fail {
		return &store.WriteError{Err: ErrInjected}
	}
	return m.Driver.WriteBatch(ctx, batch)
}

// BatchCount returns the number of WriteBatch calls seen.
func (m *MockStore) BatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Batches)
}
