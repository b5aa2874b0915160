package editing

import (
	"context"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

// Notify queues another context's save record for this context. It may be
// called from any goroutine: it only marks the cached objects the record
// touched as stale and never changes an object instance. The owner applies
// the queued records at the start of its next read, link, delete or save, or
// explicitly with Sync.
func (c *Context) Notify(rec *Record) {
	if rec == nil || rec.saver == c {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.markStale(rec)
}

// Sync applies the records queued by Notify. It must be called by the
// goroutine driving the context.
func (c *Context) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}
	return c.sync(ctx)
}

// Merge folds another context's save record into this context's cache right
// away, on the calling goroutine. Cached objects the record deleted are
// dropped; updated ones are reloaded in place through this context's parent
// chain. Objects with uncommitted local changes are left alone.
//
// Records from the context itself are ignored, as is everything once the
// context has been released.
func (c *Context) Merge(ctx context.Context, rec *Record) error {
	if rec == nil || rec.saver == c {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.markStale(rec)
	return c.sync(ctx)
}

func (c *Context) markStale(rec *Record) {
	for _, ids := range [][]graph.Identity{rec.Updated, rec.Deleted} {
		for _, id := range ids {
			if _, ok := c.objects[id]; ok {
				c.stale[id] = struct{}{}
			}
		}
	}
}

// sync reloads every stale cached object that has no local changes. Stale
// objects with local changes keep them: local edits win until this context
// saves or discards.
func (c *Context) sync(ctx context.Context) error {
	if len(c.stale) == 0 {
		return nil
	}

	kept := 0
	for _, id := range sortedIDs(c.stale) {
		delete(c.stale, id)
		if c.locallyModified(id) {
			kept++
			continue
		}
		if err := c.refresh(ctx, id); err != nil {
			return err
		}
	}

	if kept > 0 {
		c.logger.Debug("merge kept local edits", "context", c.name, "kept", kept)
	}
	return nil
}

// freshForChild returns a private, up-to-date copy of a stale cached object
// without touching the instance this context handed to its owner. ok is false
// when id is not stale here.
func (c *Context) freshForChild(ctx context.Context, id graph.Identity) (obj *graph.Object, ok bool, err error) {
	if _, stale := c.stale[id]; !stale || c.locallyModified(id) {
		return nil, false, nil
	}
	obj, err = c.readParent(ctx, id)
	return obj, true, err
}
