// Package editing implements editing contexts: confined workspaces that hold
// uncommitted inserts, updates and deletes against a parent context or, for
// the root, against the durable store.
//
// Contexts form a tree. A save commits a context's change-set one level up:
// into the parent's change-set, or atomically into the store for the root.
// Every successful save produces a Record that the other live contexts merge
// into their caches.
package editing

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/identity"
	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// Observer receives context lifecycle callbacks. The coordinator implements
// it to track live contexts and route save records between them.
type Observer interface {
	// ContextCreated is called for every new context, root included.
	ContextCreated(c *Context)

	// ContextSaved is called after a save that committed changes. No context
	// lock is held during the call.
	ContextSaved(c *Context, rec *Record)

	// ContextReleased is called once a context has been released.
	ContextReleased(c *Context)
}

// Config holds what every context of one tree shares.
type Config struct {
	// Name of the root context.
	Name string

	// Model validates objects. Required.
	Model *model.Model

	// Registry mints temporary and permanent identities. Required.
	Registry *identity.Registry

	// Observer is notified of lifecycle events. Optional.
	Observer Observer

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Context is an editing context. A Context must be driven by one goroutine at
// a time; different contexts may be used concurrently.
type Context struct {
	name     string
	depth    int
	parent   *Context
	store    store.Store
	model    *model.Model
	registry *identity.Registry
	observer Observer
	logger   *slog.Logger

	// saving is claimed by BeginSave and released when the pipeline ends.
	saving atomic.Bool

	mu       sync.Mutex
	released bool

	// objects holds every object instance this context owns: cached
	// baselines read from the parent chain plus local inserts.
	objects map[graph.Identity]*graph.Object

	// inserted, dirty and deleted make up the change-set.
	inserted map[graph.Identity]struct{}
	dirty    map[graph.Identity]*fields
	deleted  map[graph.Identity]struct{}

	// shadowed holds child deletes of objects this context had edited. They
	// take effect if the edit is discarded.
	shadowed map[graph.Identity]struct{}

	// stale holds cached objects touched by records queued with Notify.
	stale map[graph.Identity]struct{}
}

// fields are the dirty attribute and relationship names of an updated object.
type fields struct {
	attrs map[string]struct{}
	rels  map[string]struct{}
}

func newFields() *fields {
	return &fields{
		attrs: make(map[string]struct{}),
		rels:  make(map[string]struct{}),
	}
}

// NewRoot creates the root context of a tree, backed by st.
func NewRoot(st store.Store, cfg Config) (*Context, error) {
	if st == nil {
		return nil, errors.New("root context requires a store")
	}
	if cfg.Model == nil {
		return nil, errors.New("context requires a model")
	}
	if cfg.Registry == nil {
		return nil, errors.New("context requires an identity registry")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	name := cfg.Name
	if name == "" {
		name = "root"
	}

	c := &Context{
		name:     name,
		store:    st,
		model:    cfg.Model,
		registry: cfg.Registry,
		observer: cfg.Observer,
		logger:   log,
	}
	c.reset()
	c.objects = make(map[graph.Identity]*graph.Object)
	c.stale = make(map[graph.Identity]struct{})

	if c.observer != nil {
		c.observer.ContextCreated(c)
	}
	return c, nil
}

// NewChild creates a context whose parent is c. The child starts Clean.
func (c *Context) NewChild(name string) *Context {
	child := &Context{
		name:     name,
		depth:    c.depth + 1,
		parent:   c,
		model:    c.model,
		registry: c.registry,
		observer: c.observer,
		logger:   c.logger,
	}
	child.reset()
	child.objects = make(map[graph.Identity]*graph.Object)
	child.stale = make(map[graph.Identity]struct{})

	if child.observer != nil {
		child.observer.ContextCreated(child)
	}
	return child
}

// Name returns the context's name.
func (c *Context) Name() string {
	return c.name
}

// Parent returns the parent context, or nil for the root.
func (c *Context) Parent() *Context {
	return c.parent
}

// IsRoot reports whether the context commits directly to the store.
func (c *Context) IsRoot() bool {
	return c.parent == nil
}

// Depth is the number of ancestors between c and the root.
func (c *Context) Depth() int {
	return c.depth
}

// Model returns the model the context validates against.
func (c *Context) Model() *model.Model {
	return c.model
}

// State reports the context's save state.
func (c *Context) State() State {
	if c.saving.Load() {
		return Saving
	}
	if c.HasChanges() {
		return Dirty
	}
	return Clean
}

// HasChanges reports whether the context has uncommitted changes.
func (c *Context) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasChangesLocked()
}

func (c *Context) hasChangesLocked() bool {
	return len(c.inserted) > 0 || len(c.dirty) > 0 || len(c.deleted) > 0
}

// Owns reports whether obj is an instance tracked by this context.
func (c *Context) Owns(obj *graph.Object) bool {
	if obj == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[obj.ID()] == obj
}

// Release detaches the context. Unsaved changes are discarded and every later
// operation fails with ErrReleased.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	dropped := c.hasChangesLocked()
	c.released = true
	c.reset()
	c.objects = make(map[graph.Identity]*graph.Object)
	c.stale = make(map[graph.Identity]struct{})
	c.mu.Unlock()

	if dropped {
		c.logger.Debug("released context with unsaved changes", "context", c.name)
	}
	if c.observer != nil {
		c.observer.ContextReleased(c)
	}
}

// reset clears the change-set. Cached objects stay.
func (c *Context) reset() {
	c.inserted = make(map[graph.Identity]struct{})
	c.dirty = make(map[graph.Identity]*fields)
	c.deleted = make(map[graph.Identity]struct{})
	c.shadowed = make(map[graph.Identity]struct{})
}

func (c *Context) checkLive() error {
	if c.released {
		return fmt.Errorf("%s: %w", c.name, ErrReleased)
	}
	return nil
}

// own checks that obj is the instance c tracks under its identity.
func (c *Context) own(obj *graph.Object) error {
	if obj == nil {
		return fmt.Errorf("nil object: %w", ErrForeignObject)
	}
	if c.objects[obj.ID()] != obj {
		return fmt.Errorf("%s: %w", obj.ID(), ErrForeignObject)
	}
	return nil
}

// locallyModified reports whether the change-set holds id in any form.
func (c *Context) locallyModified(id graph.Identity) bool {
	if _, ok := c.inserted[id]; ok {
		return true
	}
	if _, ok := c.dirty[id]; ok {
		return true
	}
	_, ok := c.deleted[id]
	return ok
}

// mark records a dirty attribute or relationship. Inserts are saved whole and
// are not tracked field by field.
func (c *Context) mark(id graph.Identity, name string, relationship bool) {
	if _, ok := c.inserted[id]; ok {
		return
	}
	f, ok := c.dirty[id]
	if !ok {
		f = newFields()
		c.dirty[id] = f
	}
	if relationship {
		f.rels[name] = struct{}{}
	} else {
		f.attrs[name] = struct{}{}
	}
}

// insertedObjects returns the pending inserts ordered by identity.
func (c *Context) insertedObjects() []*graph.Object {
	ids := sortedIDs(c.inserted)
	objs := make([]*graph.Object, 0, len(ids))
	for _, id := range ids {
		objs = append(objs, c.objects[id])
	}
	return objs
}

func sortedIDs[V any](m map[graph.Identity]V) []graph.Identity {
	ids := slices.Collect(maps.Keys(m))
	slices.SortFunc(ids, func(a, b graph.Identity) int {
		return cmp.Or(cmp.Compare(a.Entity, b.Entity), cmp.Compare(a.Key, b.Key))
	})
	return ids
}
