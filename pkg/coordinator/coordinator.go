// Package coordinator owns the tree of editing contexts behind one durable
// store.
//
// The coordinator holds the main context, the store-backed root every other
// context descends from. It hands out derived contexts for background work
// and main-child contexts for short-lived scratch edits, runs saves that
// reach the store on a serial queue, and routes each save's record to the
// other live contexts so their caches catch up.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/eventstream"
	"github.com/papercomputeco/graphstack/pkg/eventstream/nop"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/identity"
	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/migrate"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/worker"
)

const (
	// MainContextName is the name of the main context.
	MainContextName = "main"

	defaultSaveQueueSize  uint = 256
	defaultAsyncQueueSize uint = 64
)

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("coordinator is closed")

	// ErrQueueFull is reported to SaveAsync callbacks when the context's
	// save queue has no room.
	ErrQueueFull = errors.New("save queue is full")
)

// Listener receives every save record after it has been merged into the live
// contexts.
type Listener func(rec *editing.Record)

// Coordinator manages the context tree of one store.
type Coordinator struct {
	store     *gate
	model     *model.Model
	logger    *slog.Logger
	publisher eventstream.Publisher

	main      *editing.Context
	rootQueue *worker.Pool

	asyncQueueSize uint

	mu        sync.Mutex
	closed    bool
	live      map[*editing.Context]struct{}
	queues    map[*editing.Context]*worker.Pool
	listeners map[int]Listener
	nextID    int
	derived   int
	children  int

	// pending tracks goroutines the coordinator started.
	pending sync.WaitGroup
}

// Open migrates the store to target and starts a coordinator on it.
func Open(ctx context.Context, st store.Store, target *model.Model, opts ...Option) (*Coordinator, error) {
	o := newOptions(opts)
	g := newGate(st)

	m, err := migrate.Run(ctx, g, target, o.logger)
	if err != nil {
		return nil, err
	}
	return start(ctx, g, m, o)
}

// New starts a coordinator on a store that already holds a model.
func New(ctx context.Context, st store.Store, opts ...Option) (*Coordinator, error) {
	o := newOptions(opts)
	g := newGate(st)

	m, err := g.LoadModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	return start(ctx, g, m, o)
}

func newOptions(opts []Option) *options {
	o := &options{
		saveQueueSize:  defaultSaveQueueSize,
		asyncQueueSize: defaultAsyncQueueSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	if o.publisher == nil {
		o.publisher = nop.NewPublisher()
	}
	return o
}

func start(ctx context.Context, g *gate, m *model.Model, o *options) (*Coordinator, error) {
	rootQueue, err := worker.NewPool(&worker.Config{
		Name:      "save-" + MainContextName,
		QueueSize: o.saveQueueSize,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}

	co := &Coordinator{
		store:          g,
		model:          m,
		logger:         o.logger,
		publisher:      o.publisher,
		rootQueue:      rootQueue,
		asyncQueueSize: o.asyncQueueSize,
		live:           make(map[*editing.Context]struct{}),
		queues:         make(map[*editing.Context]*worker.Pool),
		listeners:      make(map[int]Listener),
	}

	co.main, err = editing.NewRoot(g, editing.Config{
		Name:     MainContextName,
		Model:    m,
		Registry: identity.NewRegistry(g),
		Observer: observer{co},
		Logger:   o.logger,
	})
	if err != nil {
		rootQueue.Close()
		return nil, err
	}

	for i, fn := range o.initializers {
		if err := co.PerformChanges(ctx, fn); err != nil {
			_ = co.Close()
			return nil, fmt.Errorf("initializer %d: %w", i, err)
		}
	}

	co.logger.Info("coordinator started", "model", m.Name(), "version", m.Version())
	return co, nil
}

// Model returns the model the store was opened with.
func (co *Coordinator) Model() *model.Model {
	return co.model
}

// MainContext returns the store-backed root context.
func (co *Coordinator) MainContext() *editing.Context {
	return co.main
}

// NewDerivedContext creates a child of the main context for background work.
func (co *Coordinator) NewDerivedContext() (*editing.Context, error) {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil, ErrClosed
	}
	co.derived++
	name := fmt.Sprintf("derived-%d", co.derived)
	co.mu.Unlock()

	return co.main.NewChild(name), nil
}

// NewMainChildContext creates a child of the main context for short-lived
// scratch edits.
func (co *Coordinator) NewMainChildContext() (*editing.Context, error) {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil, ErrClosed
	}
	co.children++
	name := fmt.Sprintf("%s-child-%d", MainContextName, co.children)
	co.mu.Unlock()

	return co.main.NewChild(name), nil
}

// SaveAndWait saves c and blocks until the save has committed or failed.
// A save already in flight on c fails the call with
// editing.ErrSaveInProgress.
//
// Saves of a root context run on the serial queue behind every other
// store-bound save and claim the context when they reach the front, so a
// save queued earlier never finds the slot taken by a later one.
func (co *Coordinator) SaveAndWait(ctx context.Context, c *editing.Context) error {
	if co.isClosed() {
		return ErrClosed
	}

	if !c.IsRoot() {
		p, err := c.BeginSave()
		if err != nil {
			return err
		}
		_, err = p.Run(ctx)
		return err
	}

	if c.State() == editing.Saving {
		return fmt.Errorf("%s: %w", c.Name(), editing.ErrSaveInProgress)
	}
	return co.submitRootSave(ctx, c)
}

// SaveAsync queues a save of c and returns immediately. onComplete, when not
// nil, receives the record (nil when there was nothing to save) or the error.
// Asynchronous saves of one context run in the order they were queued.
//
// onComplete runs on the context's save queue and must not wait on another
// save of the same queue.
func (co *Coordinator) SaveAsync(c *editing.Context, onComplete func(*editing.Record, error)) {
	complete := func(rec *editing.Record, err error) {
		if onComplete != nil {
			onComplete(rec, err)
		}
	}
	fail := func(err error) {
		go complete(nil, err)
	}

	q, err := co.queueFor(c)
	if err != nil {
		fail(err)
		return
	}

	ok := q.TrySubmit(func() {
		complete(c.Save(context.Background()))
	})
	if !ok {
		co.logger.Warn("async save dropped", "context", c.Name(), "error", ErrQueueFull)
		fail(ErrQueueFull)
	}
}

// queueFor returns the serial queue c's asynchronous saves run on, creating
// it on first use for non-root contexts.
func (co *Coordinator) queueFor(c *editing.Context) (*worker.Pool, error) {
	if c.IsRoot() {
		if co.isClosed() {
			return nil, ErrClosed
		}
		return co.rootQueue, nil
	}

	co.mu.Lock()
	defer co.mu.Unlock()

	if co.closed {
		return nil, ErrClosed
	}
	if _, ok := co.live[c]; !ok {
		return nil, fmt.Errorf("%s: %w", c.Name(), editing.ErrReleased)
	}
	if q, ok := co.queues[c]; ok {
		return q, nil
	}

	q, err := worker.NewPool(&worker.Config{
		Name:      "save-" + c.Name(),
		QueueSize: co.asyncQueueSize,
		Logger:    co.logger,
	})
	if err != nil {
		return nil, err
	}
	co.queues[c] = q
	return q, nil
}

// ObtainPermanentIdentity gives a pending insert its permanent identity ahead
// of the save, so it can be handed to another context once saved. It reports
// false when no live context owns obj or the object already has one.
func (co *Coordinator) ObtainPermanentIdentity(ctx context.Context, obj *graph.Object) bool {
	for _, c := range co.liveContexts() {
		if !c.Owns(obj) {
			continue
		}
		if _, err := c.ObtainPermanentIdentity(ctx, obj); err != nil {
			co.logger.Debug("permanent identity not assigned",
				"context", c.Name(), "identity", obj.ID().String(), "error", err)
			return false
		}
		return true
	}
	return false
}

// Merge folds rec into c's cache right away and must be called from the
// goroutine driving c. Records of saves made through the coordinator are
// queued on every live context automatically and applied at its next
// operation; Merge exists for records obtained elsewhere, such as from a
// Listener.
func (co *Coordinator) Merge(ctx context.Context, c *editing.Context, rec *editing.Record) error {
	return c.Merge(ctx, rec)
}

// Subscribe registers a listener for save records and returns a function
// that removes it.
func (co *Coordinator) Subscribe(fn Listener) (unsubscribe func()) {
	co.mu.Lock()
	id := co.nextID
	co.nextID++
	co.listeners[id] = fn
	co.mu.Unlock()

	return func() {
		co.mu.Lock()
		delete(co.listeners, id)
		co.mu.Unlock()
	}
}

// PerformChanges runs fn in a fresh derived context and saves the result
// through the main context to the store. The derived context is released
// afterwards; when fn fails nothing is saved.
//
// If the store write fails the changes stay in the main context, which is
// left dirty for a later save.
func (co *Coordinator) PerformChanges(ctx context.Context, fn func(ctx context.Context, c *editing.Context) error) error {
	d, err := co.NewDerivedContext()
	if err != nil {
		return err
	}
	defer d.Release()

	if err := fn(ctx, d); err != nil {
		return err
	}
	if err := co.SaveAndWait(ctx, d); err != nil {
		return err
	}
	return co.saveMain(ctx)
}

// Read runs fn in a fresh derived context and releases it afterwards.
// Nothing fn changes is saved.
func (co *Coordinator) Read(ctx context.Context, fn func(ctx context.Context, c *editing.Context) error) error {
	d, err := co.NewDerivedContext()
	if err != nil {
		return err
	}
	defer d.Release()

	return fn(ctx, d)
}

// PerformChangesAsync runs PerformChanges on a new goroutine and reports the
// result to onComplete.
func (co *Coordinator) PerformChangesAsync(fn func(ctx context.Context, c *editing.Context) error, onComplete func(error)) {
	report := func(err error) {
		if onComplete != nil {
			onComplete(err)
		}
	}

	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		go report(ErrClosed)
		return
	}
	co.pending.Add(1)
	co.mu.Unlock()

	go func() {
		defer co.pending.Done()
		report(co.PerformChanges(context.Background(), fn))
	}()
}

// saveMain queues a main-context save behind saves already on the queue.
func (co *Coordinator) saveMain(ctx context.Context) error {
	return co.submitRootSave(ctx, co.main)
}

// submitRootSave runs a save of the root context c on the serial queue and
// waits for it.
func (co *Coordinator) submitRootSave(ctx context.Context, c *editing.Context) error {
	done := make(chan error, 1)
	err := co.rootQueue.Submit(ctx, func() {
		_, err := c.Save(ctx)
		done <- err
	})
	if err != nil {
		if errors.Is(err, worker.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return <-done
}

// Close stops accepting work, waits for queued saves and background work to
// finish, and closes the publisher. The store is left open.
func (co *Coordinator) Close() error {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil
	}
	co.closed = true
	co.mu.Unlock()

	co.pending.Wait()

	co.mu.Lock()
	queues := make([]*worker.Pool, 0, len(co.queues))
	for c, q := range co.queues {
		queues = append(queues, q)
		delete(co.queues, c)
	}
	co.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
	co.rootQueue.Close()

	if err := co.publisher.Close(); err != nil {
		return fmt.Errorf("closing publisher: %w", err)
	}
	co.logger.Info("coordinator closed")
	return nil
}

func (co *Coordinator) isClosed() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.closed
}

// liveContexts returns the live contexts, parents before children.
func (co *Coordinator) liveContexts() []*editing.Context {
	co.mu.Lock()
	out := make([]*editing.Context, 0, len(co.live))
	for c := range co.live {
		out = append(out, c)
	}
	co.mu.Unlock()

	slices.SortStableFunc(out, func(a, b *editing.Context) int {
		return a.Depth() - b.Depth()
	})
	return out
}

// dispatch queues rec on every live context except the saver and its
// ancestors, which already hold the changes. Each context applies it on its
// own goroutine at its next operation.
func (co *Coordinator) dispatch(saver *editing.Context, rec *editing.Record) {
	skip := map[*editing.Context]struct{}{saver: {}}
	for p := saver.Parent(); p != nil; p = p.Parent() {
		skip[p] = struct{}{}
	}

	for _, c := range co.liveContexts() {
		if _, ok := skip[c]; ok {
			continue
		}
		c.Notify(rec)
	}

	co.mu.Lock()
	listeners := make([]Listener, 0, len(co.listeners))
	for _, fn := range co.listeners {
		listeners = append(listeners, fn)
	}
	co.mu.Unlock()

	for _, fn := range listeners {
		fn(rec)
	}

	if rec.Persisted {
		co.publish(context.Background(), rec)
	}
}

func (co *Coordinator) publish(ctx context.Context, rec *editing.Record) {
	ev := eventstream.NewSavePersistedEvent(co.model.Name(), co.model.Version(), rec)
	if err := co.publisher.PublishSave(ctx, ev); err != nil {
		co.logger.Warn("failed to publish save event", "event_id", ev.EventID, "error", err)
	}
}

// observer receives lifecycle callbacks from the contexts the coordinator
// created.
type observer struct {
	co *Coordinator
}

func (o observer) ContextCreated(c *editing.Context) {
	o.co.mu.Lock()
	o.co.live[c] = struct{}{}
	o.co.mu.Unlock()

	o.co.logger.Debug("context created", "context", c.Name(), "depth", c.Depth())
}

func (o observer) ContextSaved(c *editing.Context, rec *editing.Record) {
	o.co.dispatch(c, rec)
}

func (o observer) ContextReleased(c *editing.Context) {
	o.co.mu.Lock()
	delete(o.co.live, c)
	q, ok := o.co.queues[c]
	delete(o.co.queues, c)
	tracked := ok && !o.co.closed
	if tracked {
		o.co.pending.Add(1)
	}
	o.co.mu.Unlock()

	if ok {
		// The release may come from a job on q itself.
		go func() {
			if tracked {
				defer o.co.pending.Done()
			}
			q.Close()
		}()
	}

	o.co.logger.Debug("context released", "context", c.Name())
}
