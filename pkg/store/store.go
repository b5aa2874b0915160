// Package store defines the durable store contract the context stack is
// built on. Backends live in subpackages: inmemory, sqlite and postgres.
package store

import (
	"context"
	"sort"
	"strconv"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
)

// Store is the opaque durable backend behind the root editing context.
// The coordinator funnels every call through a single access gate, but
// implementations must still be safe for use from multiple goroutines.
type Store interface {
	// LoadModel returns the model persisted in the store, or ErrNoModel when
	// the store has never been given one.
	LoadModel(ctx context.Context) (*model.Model, error)

	// SaveModel persists the model, replacing any previous version.
	SaveModel(ctx context.Context, m *model.Model) error

	// WriteBatch applies inserts, updates and deletes atomically. Either the
	// whole batch is durable or none of it is; failures are *WriteError.
	WriteBatch(ctx context.Context, batch Batch) error

	// Read returns the stored object for an identity, or NotFoundError.
	Read(ctx context.Context, id graph.Identity) (*graph.Object, error)

	// Fetch returns every stored object of an entity.
	Fetch(ctx context.Context, entity string) ([]*graph.Object, error)

	// MintPermanentIdentity returns a new identity for the entity that the
	// store guarantees is unique.
	MintPermanentIdentity(ctx context.Context, entity string) (graph.Identity, error)

	// Close releases the backend's resources.
	Close() error
}

// Batch is one atomic unit of store writes. Inserts and updates carry the
// full object state.
type Batch struct {
	Inserts []*graph.Object
	Updates []*graph.Object
	Deletes []graph.Identity
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool {
	return len(b.Inserts) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// Size is the number of operations in the batch.
func (b Batch) Size() int {
	return len(b.Inserts) + len(b.Updates) + len(b.Deletes)
}

// SortByKey orders objects by key, numerically when both keys are numbers.
func SortByKey(objs []*graph.Object) {
	sort.Slice(objs, func(i, j int) bool {
		return keyLess(objs[i].ID().Key, objs[j].ID().Key)
	})
}

func keyLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
