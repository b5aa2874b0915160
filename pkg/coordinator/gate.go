package coordinator

import (
	"context"
	"sync"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// gate is the single access point to the durable store. Every call holds the
// gate's mutex, so the store only ever sees one caller at a time. No context
// lock is taken while the gate is held.
type gate struct {
	mu    sync.Mutex
	store store.Store
}

var _ store.Store = (*gate)(nil)

func newGate(st store.Store) *gate {
	return &gate{store: st}
}

func (g *gate) LoadModel(ctx context.Context) (*model.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.LoadModel(ctx)
}

func (g *gate) SaveModel(ctx context.Context, m *model.Model) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.SaveModel(ctx, m)
}

func (g *gate) WriteBatch(ctx context.Context, batch store.Batch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.WriteBatch(ctx, batch)
}

func (g *gate) Read(ctx context.Context, id graph.Identity) (*graph.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Read(ctx, id)
}

func (g *gate) Fetch(ctx context.Context, entity string) ([]*graph.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Fetch(ctx, entity)
}

func (g *gate) MintPermanentIdentity(ctx context.Context, entity string) (graph.Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.MintPermanentIdentity(ctx, entity)
}

// Close is a no-op: the caller that opened the store closes it.
func (g *gate) Close() error {
	return nil
}
