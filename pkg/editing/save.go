package editing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// PendingSave is a claimed save slot. Exactly one of Run or Abandon must be
// called.
type PendingSave struct {
	c *Context
}

// BeginSave claims the context's save slot, failing with ErrSaveInProgress if
// another save holds it. The coordinator claims on the caller's goroutine and
// runs the pipeline on a queue.
func (c *Context) BeginSave() (*PendingSave, error) {
	if !c.saving.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", c.name, ErrSaveInProgress)
	}
	return &PendingSave{c: c}, nil
}

// Run executes the save pipeline and releases the slot. A nil record with a
// nil error means there was nothing to save.
func (p *PendingSave) Run(ctx context.Context) (*Record, error) {
	rec, err := p.c.save(ctx)
	p.c.saving.Store(false)

	if err != nil {
		p.c.logger.Warn("save failed", "context", p.c.name, "error", err)
		return nil, err
	}
	if rec != nil && p.c.observer != nil {
		p.c.observer.ContextSaved(p.c, rec)
	}
	return rec, nil
}

// Abandon releases the slot without saving.
func (p *PendingSave) Abandon() {
	p.c.saving.Store(false)
}

// Save validates the change-set, assigns permanent identities to inserts and
// commits one level up: into the parent's change-set, or into the store for
// the root. Saving a context without changes does nothing and returns a nil
// record.
func (c *Context) Save(ctx context.Context) (*Record, error) {
	p, err := c.BeginSave()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

func (c *Context) save(ctx context.Context) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	if !c.hasChangesLocked() {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	inserts := c.insertedObjects()
	for _, obj := range inserts {
		if !obj.ID().Temporary {
			continue
		}
		if _, err := c.registry.AssignPermanent(ctx, changeSet{c}, obj); err != nil {
			return nil, fmt.Errorf("assigning permanent identity: %w", err)
		}
	}

	// Past this point the save cannot be cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inserts = c.insertedObjects()
	updated := sortedIDs(c.dirty)
	deleted := sortedIDs(c.deleted)

	if c.parent != nil {
		if err := c.parent.absorb(ctx, c, inserts, deleted); err != nil {
			return nil, err
		}
	} else {
		batch := store.Batch{Deletes: deleted}
		for _, obj := range inserts {
			batch.Inserts = append(batch.Inserts, obj.Clone())
		}
		for _, id := range updated {
			batch.Updates = append(batch.Updates, c.objects[id].Clone())
		}
		if err := c.store.WriteBatch(ctx, batch); err != nil {
			var werr *store.WriteError
			if !errors.As(err, &werr) {
				err = &store.WriteError{Err: err}
			}
			return nil, err
		}
	}

	rec := &Record{
		Source:    c.name,
		Inserted:  make(map[graph.Identity]graph.Identity, len(inserts)),
		Updated:   updated,
		Deleted:   deleted,
		Persisted: c.parent == nil,
		SavedAt:   time.Now().UTC(),
		saver:     c,
	}
	for _, obj := range inserts {
		from := obj.Origin()
		if from.IsZero() {
			from = obj.ID()
		}
		rec.Inserted[from] = obj.ID()
	}

	if len(c.shadowed) > 0 {
		c.logger.Info("saved edits override child deletes",
			"context", c.name, "objects", len(c.shadowed))
	}
	c.reset()

	c.logger.Debug("context saved",
		"context", c.name,
		"inserted", len(rec.Inserted),
		"updated", len(rec.Updated),
		"deleted", len(rec.Deleted),
		"persisted", rec.Persisted,
	)
	return rec, nil
}

// validate checks every insert in full and every updated object against the
// model. References to temporary identities must point at local inserts.
func (c *Context) validate() error {
	var violations []model.Violation

	check := func(id graph.Identity) error {
		obj := c.objects[id]
		if err := c.model.ValidateObject(obj, true); err != nil {
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				return err
			}
			violations = append(violations, verr.Violations...)
		}
		for _, targets := range obj.Relationships() {
			for _, t := range targets {
				if _, ok := c.inserted[t]; t.Temporary && !ok {
					return fmt.Errorf("%s references %s: %w", id, t, ErrForeignTemporaryIdentity)
				}
			}
		}
		return nil
	}

	for _, id := range sortedIDs(c.inserted) {
		if err := check(id); err != nil {
			return err
		}
	}
	for _, id := range sortedIDs(c.dirty) {
		if err := check(id); err != nil {
			return err
		}
	}

	if len(violations) > 0 {
		return &model.ValidationError{Violations: violations}
	}
	return nil
}

// absorb merges a child's committed change-set into c's change-set. The
// child holds its own lock; c's lock is taken here, keeping the child before
// parent lock order.
//
// Child updates overwrite c's values field by field. A child delete of an
// object c has modified locally is held back while the edit stands: saving c
// keeps the edit, discarding it applies the delete.
func (c *Context) absorb(ctx context.Context, child *Context, inserts []*graph.Object, deleted []graph.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}

	for _, obj := range inserts {
		id := obj.ID()
		c.objects[id] = obj.Clone()
		c.inserted[id] = struct{}{}
	}

	for _, id := range sortedIDs(child.dirty) {
		f := child.dirty[id]
		src := child.objects[id]

		dst, err := c.lookup(ctx, id)
		if store.IsNotFound(err) {
			c.logger.Warn("dropping update to object deleted in parent",
				"context", c.name, "child", child.name, "identity", id.String())
			continue
		}
		if err != nil {
			return err
		}

		for name := range f.attrs {
			dst.Set(name, src.Get(name))
			c.mark(id, name, false)
		}
		for name := range f.rels {
			dst.SetRelated(name, src.Related(name))
			c.mark(id, name, true)
		}
	}

	for _, id := range deleted {
		if _, ok := c.inserted[id]; ok {
			delete(c.inserted, id)
			delete(c.objects, id)
			continue
		}
		if _, ok := c.dirty[id]; ok {
			c.shadowed[id] = struct{}{}
			c.logger.Info("holding child delete of locally edited object",
				"context", c.name, "child", child.name, "identity", id.String())
			continue
		}
		delete(c.objects, id)
		c.deleted[id] = struct{}{}
	}

	return nil
}

// ObtainPermanentIdentity swaps a pending insert's temporary identity for a
// permanent one ahead of the save, so the object can be handed to another
// context once saved.
func (c *Context) ObtainPermanentIdentity(ctx context.Context, obj *graph.Object) (graph.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return graph.Identity{}, err
	}
	if err := c.own(obj); err != nil {
		return graph.Identity{}, err
	}
	return c.registry.AssignPermanent(ctx, changeSet{c}, obj)
}

// Discard drops the change-set. Edited objects are refreshed in place from
// the parent chain; local inserts are forgotten. Child deletes held back by
// the discarded edits are applied.
func (c *Context) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}

	for id := range c.inserted {
		delete(c.objects, id)
	}
	for id := range c.dirty {
		if _, ok := c.shadowed[id]; ok {
			continue
		}
		if err := c.refresh(ctx, id); err != nil {
			return err
		}
	}

	shadowed := sortedIDs(c.shadowed)
	c.reset()
	for _, id := range shadowed {
		delete(c.objects, id)
		c.deleted[id] = struct{}{}
	}
	return c.sync(ctx)
}

// Validate checks the change-set against the model the way a save would,
// without saving.
func (c *Context) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}
	return c.validate()
}

// refresh reloads a cached object in place from the parent chain, dropping it
// when the parent no longer has it.
func (c *Context) refresh(ctx context.Context, id graph.Identity) error {
	obj, ok := c.objects[id]
	if !ok {
		return nil
	}
	fresh, err := c.readParent(ctx, id)
	if store.IsNotFound(err) {
		delete(c.objects, id)
		return nil
	}
	if err != nil {
		return err
	}
	obj.CopyFrom(fresh)
	return nil
}

// changeSet adapts a locked Context to identity.ChangeSet.
type changeSet struct {
	c *Context
}

func (cs changeSet) IsInserted(obj *graph.Object) bool {
	id := obj.ID()
	_, ok := cs.c.inserted[id]
	return ok && cs.c.objects[id] == obj
}

func (cs changeSet) Rekey(from, to graph.Identity) {
	c := cs.c
	if obj, ok := c.objects[from]; ok {
		delete(c.objects, from)
		c.objects[to] = obj
	}
	if _, ok := c.inserted[from]; ok {
		delete(c.inserted, from)
		c.inserted[to] = struct{}{}
	}
	for _, obj := range c.objects {
		obj.ReplaceReferences(from, to)
	}
}
