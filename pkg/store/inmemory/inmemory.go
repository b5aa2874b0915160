// Package inmemory provides a map-backed durable store, used by tests and by
// the "inmemory" storage driver setting.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// Driver implements store.Store using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex for locking the object map, sequences
	// and model
	mu sync.RWMutex

	// objects is keyed by identity; values are private copies
	objects map[graph.Identity]*graph.Object

	// sequences holds the last key minted per entity
	sequences map[string]int64

	model *model.Model
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		objects:   make(map[graph.Identity]*graph.Object),
		sequences: make(map[string]int64),
	}
}

// LoadModel returns the saved model.
func (d *Driver) LoadModel(_ context.Context) (*model.Model, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.model == nil {
		return nil, store.ErrNoModel
	}
	return d.model, nil
}

// SaveModel replaces the saved model.
func (d *Driver) SaveModel(_ context.Context, m *model.Model) error {
	if m == nil {
		return errors.New("cannot save nil model")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.model = m
	return nil
}

// WriteBatch checks every operation before applying any of them, so a bad
// batch leaves the store untouched.
func (d *Driver) WriteBatch(_ context.Context, batch store.Batch) error {
	if err := checkBatch(batch); err != nil {
		return &store.WriteError{Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, obj := range batch.Inserts {
		d.objects[obj.ID()] = obj.Clone()
	}
	for _, obj := range batch.Updates {
		d.objects[obj.ID()] = obj.Clone()
	}
	for _, id := range batch.Deletes {
		delete(d.objects, id)
	}

	return nil
}

func checkBatch(batch store.Batch) error {
	for _, objs := range [][]*graph.Object{batch.Inserts, batch.Updates} {
		for _, obj := range objs {
			if obj == nil {
				return errors.New("cannot store nil object")
			}
			if err := checkIdentity(obj.ID()); err != nil {
				return err
			}
		}
	}
	for _, id := range batch.Deletes {
		if err := checkIdentity(id); err != nil {
			return err
		}
	}
	return nil
}

func checkIdentity(id graph.Identity) error {
	if id.Key == "" {
		return graph.ErrNoIdentity
	}
	if id.Temporary {
		return fmt.Errorf("cannot store temporary identity %s", id)
	}
	return nil
}

// Read retrieves a copy of an object by identity.
func (d *Driver) Read(_ context.Context, id graph.Identity) (*graph.Object, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	obj, ok := d.objects[id]
	if !ok {
		return nil, store.NotFoundError{Identity: id}
	}

	return obj.Clone(), nil
}

// Fetch returns copies of every object of an entity, ordered by key.
func (d *Driver) Fetch(_ context.Context, entity string) ([]*graph.Object, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*graph.Object
	for id, obj := range d.objects {
		if id.Entity == entity {
			result = append(result, obj.Clone())
		}
	}

	store.SortByKey(result)
	return result, nil
}

// MintPermanentIdentity hands out increasing numeric keys per entity.
func (d *Driver) MintPermanentIdentity(_ context.Context, entity string) (graph.Identity, error) {
	if entity == "" {
		return graph.Identity{}, errors.New("cannot mint identity for empty entity")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sequences[entity]++
	return graph.NewIdentity(entity, strconv.FormatInt(d.sequences[entity], 10)), nil
}

// Count returns the number of objects in the in-memory store.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}
