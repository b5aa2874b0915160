package editing

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// FetchRequest selects objects of one entity. A nil Predicate matches every
// object.
type FetchRequest struct {
	Entity    string
	Predicate func(*graph.Object) bool
}

// Resolve looks id up in this context, then the parent chain, then the store.
// Unknown identities return (nil, false, nil).
func (c *Context) Resolve(ctx context.Context, id graph.Identity) (*graph.Object, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return nil, false, err
	}
	if err := c.sync(ctx); err != nil {
		return nil, false, err
	}
	if id.Temporary {
		if obj, ok := c.objects[id]; ok {
			return obj, true, nil
		}
		return nil, false, fmt.Errorf("%s: %w", id, ErrForeignTemporaryIdentity)
	}

	obj, err := c.lookup(ctx, id)
	if store.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// Fetch returns the objects of req.Entity visible from this context: local
// inserts and edits first, the parent chain for everything else. The
// sequence reflects state at call time and can be ranged over once.
func (c *Context) Fetch(ctx context.Context, req FetchRequest) (iter.Seq[*graph.Object], error) {
	if _, err := c.model.Entity(req.Entity); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if err := c.checkLive(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.sync(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	objs, err := c.fetch(ctx, req.Entity)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if req.Predicate != nil {
		matched := objs[:0]
		for _, obj := range objs {
			if req.Predicate(obj) {
				matched = append(matched, obj)
			}
		}
		objs = matched
	}

	var consumed atomic.Bool
	return func(yield func(*graph.Object) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		for _, obj := range objs {
			if !yield(obj) {
				return
			}
		}
	}, nil
}

// lookup returns this context's instance for id, loading it from the parent
// chain on a miss. Deleted identities are not found.
func (c *Context) lookup(ctx context.Context, id graph.Identity) (*graph.Object, error) {
	if obj, ok := c.objects[id]; ok {
		return obj, nil
	}
	if _, ok := c.deleted[id]; ok {
		return nil, store.NotFoundError{Identity: id}
	}
	if id.Temporary {
		return nil, store.NotFoundError{Identity: id}
	}

	obj, err := c.readParent(ctx, id)
	if err != nil {
		return nil, err
	}
	c.objects[id] = obj
	return obj, nil
}

// readParent returns a private copy of the parent's view of id.
func (c *Context) readParent(ctx context.Context, id graph.Identity) (*graph.Object, error) {
	if c.parent != nil {
		return c.parent.readForChild(ctx, id)
	}

	obj, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.model.Normalize(obj); err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}
	return obj, nil
}

// readForChild serves a child's read-through. Temporary inserts never leave
// the context that made them.
func (c *Context) readForChild(ctx context.Context, id graph.Identity) (*graph.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if id.Temporary {
		return nil, store.NotFoundError{Identity: id}
	}
	if fresh, ok, err := c.freshForChild(ctx, id); ok {
		return fresh, err
	}

	obj, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return obj.Clone(), nil
}

// fetch returns this context's instances for every visible object of entity,
// caching whatever the parent chain supplied.
func (c *Context) fetch(ctx context.Context, entity string) ([]*graph.Object, error) {
	base, err := c.fetchParent(ctx, entity)
	if err != nil {
		return nil, err
	}

	seen := make(map[graph.Identity]struct{}, len(base))
	out := make([]*graph.Object, 0, len(base))
	for _, b := range base {
		id := b.ID()
		seen[id] = struct{}{}
		if _, ok := c.deleted[id]; ok {
			continue
		}
		obj, ok := c.objects[id]
		if !ok {
			obj = b
			c.objects[id] = obj
		}
		out = append(out, obj)
	}

	// Local inserts, and edited objects the parent no longer has.
	for _, m := range []map[graph.Identity]struct{}{c.inserted, keysOf(c.dirty)} {
		for _, id := range sortedIDs(m) {
			if id.Entity != entity {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, c.objects[id])
		}
	}

	return out, nil
}

func (c *Context) fetchParent(ctx context.Context, entity string) ([]*graph.Object, error) {
	if c.parent != nil {
		return c.parent.fetchForChild(ctx, entity)
	}

	objs, err := c.store.Fetch(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", entity, err)
	}
	for _, obj := range objs {
		if err := c.model.Normalize(obj); err != nil {
			return nil, fmt.Errorf("loading %s: %w", obj.ID(), err)
		}
	}
	return objs, nil
}

func (c *Context) fetchForChild(ctx context.Context, entity string) ([]*graph.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return nil, err
	}

	objs, err := c.fetch(ctx, entity)
	if err != nil {
		return nil, err
	}

	out := make([]*graph.Object, 0, len(objs))
	for _, obj := range objs {
		if obj.ID().Temporary {
			continue
		}
		fresh, ok, err := c.freshForChild(ctx, obj.ID())
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fresh)
			continue
		}
		out = append(out, obj.Clone())
	}
	return out, nil
}

func keysOf[V any](m map[graph.Identity]V) map[graph.Identity]struct{} {
	out := make(map[graph.Identity]struct{}, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

