package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/eventstream"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/identity"
	"github.com/papercomputeco/graphstack/pkg/store"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.SavePersistedEvent
	closed bool
}

func (p *recordingPublisher) PublishSave(_ context.Context, ev *eventstream.SavePersistedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) Events() []*eventstream.SavePersistedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

var _ = Describe("Coordinator", func() {
	var (
		ctx context.Context
		st  *testutils.MockStore
		pub *recordingPublisher
		co  *coordinator.Coordinator
	)

	open := func(opts ...coordinator.Option) *coordinator.Coordinator {
		opts = append([]coordinator.Option{coordinator.WithPublisher(pub)}, opts...)
		c, err := coordinator.Open(ctx, st, testutils.BlogModel(), opts...)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	insertPost := func(c *editing.Context, title string) *graph.Object {
		post := graph.New("Post")
		post.Set("title", title)
		Expect(c.Insert(post)).To(Succeed())
		return post
	}

	fetchPosts := func(c *editing.Context) []*graph.Object {
		seq, err := c.Fetch(ctx, editing.FetchRequest{Entity: "Post"})
		Expect(err).NotTo(HaveOccurred())
		return slices.Collect(seq)
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = testutils.NewMockStore()
		pub = &recordingPublisher{}
		co = nil
	})

	AfterEach(func() {
		if co != nil {
			Expect(co.Close()).To(Succeed())
		}
	})

	Describe("Open and New", func() {
		It("writes the model into a fresh store", func() {
			co = open()
			m, err := st.LoadModel(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Name()).To(Equal("blog"))
			Expect(co.Model().Version()).To(Equal(1))
		})

		It("refuses a store without a model", func() {
			_, err := coordinator.New(ctx, st)
			Expect(err).To(MatchError(store.ErrNoModel))
		})

		It("starts on a store that already has a model", func() {
			Expect(st.SaveModel(ctx, testutils.BlogModel())).To(Succeed())
			var err error
			co, err = coordinator.New(ctx, st)
			Expect(err).NotTo(HaveOccurred())
			Expect(co.MainContext().Name()).To(Equal(coordinator.MainContextName))
			Expect(co.MainContext().IsRoot()).To(BeTrue())
		})

		It("runs initializers and persists their changes", func() {
			co = open(coordinator.WithInitializer(func(_ context.Context, c *editing.Context) error {
				admin := graph.New("Author")
				admin.Set("name", "admin")
				return c.Insert(admin)
			}))

			authors, err := st.Fetch(ctx, "Author")
			Expect(err).NotTo(HaveOccurred())
			Expect(authors).To(HaveLen(1))
			Expect(authors[0].Get("name")).To(Equal("admin"))
		})

		It("fails when an initializer fails", func() {
			_, err := coordinator.Open(ctx, st, testutils.BlogModel(),
				coordinator.WithInitializer(func(context.Context, *editing.Context) error {
					return errors.New("sanitizer broke")
				}))
			Expect(err).To(MatchError(ContainSubstring("sanitizer broke")))
		})
	})

	Describe("contexts", func() {
		BeforeEach(func() {
			co = open()
		})

		It("names derived and main-child contexts", func() {
			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			s, err := co.NewMainChildContext()
			Expect(err).NotTo(HaveOccurred())

			Expect(d.Name()).To(Equal("derived-1"))
			Expect(s.Name()).To(Equal("main-child-1"))
			Expect(d.Parent()).To(Equal(co.MainContext()))
			Expect(s.Parent()).To(Equal(co.MainContext()))
		})

		It("round-trips saved objects into a fresh derived context", func() {
			main := co.MainContext()
			post := insertPost(main, "Hello")
			Expect(main.Update(post, "views", 7)).To(Succeed())
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())
			Expect(post.ID().Temporary).To(BeFalse())

			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			got, ok, err := d.Resolve(ctx, post.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got.Attributes()).To(Equal(post.Attributes()))
		})

		It("treats saving a clean context as a no-op", func() {
			Expect(co.SaveAndWait(ctx, co.MainContext())).To(Succeed())
			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			Expect(co.SaveAndWait(ctx, d)).To(Succeed())

			Expect(st.BatchCount()).To(BeZero())
			Expect(pub.Events()).To(BeEmpty())
		})

		It("fails a second save while the first is in flight", func() {
			main := co.MainContext()
			insertPost(main, "Slow")
			entered, release := st.HoldWrites()
			defer release()

			done := make(chan error, 1)
			go func() {
				done <- co.SaveAndWait(ctx, main)
			}()

			<-entered
			Expect(co.SaveAndWait(ctx, main)).To(MatchError(editing.ErrSaveInProgress))

			release()
			Eventually(done).Should(Receive(BeNil()))
			Expect(main.State()).To(Equal(editing.Clean))
		})

		It("keeps unsaved updates inside their own context", func() {
			main := co.MainContext()
			post := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			d1, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			d2, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())

			mine := fetchPosts(d1)[0]
			theirs := fetchPosts(d2)[0]
			Expect(d1.Update(mine, "title", "Final")).To(Succeed())

			Expect(fetchPosts(d1)[0].Get("title")).To(Equal("Final"))
			Expect(theirs.Get("title")).To(Equal("Draft"))
			Expect(fetchPosts(d2)[0].Get("title")).To(Equal("Draft"))
			Expect(post.Get("title")).To(Equal("Draft"))

			Expect(co.SaveAndWait(ctx, d1)).To(Succeed())
			Expect(post.Get("title")).To(Equal("Final"))
			Expect(theirs.Get("title")).To(Equal("Draft"))

			Expect(d2.Sync(ctx)).To(Succeed())
			Expect(theirs.Get("title")).To(Equal("Final"))
		})

		It("applies a sibling's save on the next read", func() {
			main := co.MainContext()
			insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			d1, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			d2, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			theirs := fetchPosts(d2)[0]

			Expect(d1.Update(fetchPosts(d1)[0], "title", "Final")).To(Succeed())
			Expect(co.SaveAndWait(ctx, d1)).To(Succeed())

			got, ok, err := d2.Resolve(ctx, theirs.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(theirs))
			Expect(theirs.Get("title")).To(Equal("Final"))
		})

		It("leaves objects alone while their owner reads them during sibling saves", func() {
			main := co.MainContext()
			insertPost(main, "v0")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			reader, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			writer, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			mine := fetchPosts(reader)[0]
			theirs := fetchPosts(writer)[0]

			stop := make(chan struct{})
			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				for {
					select {
					case <-stop:
						return
					default:
						_ = mine.Get("title")
						_ = mine.Snapshot()
					}
				}
			}()

			for i := 1; i <= 50; i++ {
				Expect(writer.Update(theirs, "title", fmt.Sprintf("v%d", i))).To(Succeed())
				Expect(co.SaveAndWait(ctx, writer)).To(Succeed())
			}
			close(stop)
			Eventually(stopped).Should(BeClosed())

			Expect(mine.Get("title")).To(Equal("v0"))
			Expect(reader.Sync(ctx)).To(Succeed())
			Expect(mine.Get("title")).To(Equal("v50"))
		})

		It("keeps a parent edit when a child deletes the same object", func() {
			main := co.MainContext()
			post := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			scratch, err := co.NewMainChildContext()
			Expect(err).NotTo(HaveOccurred())
			Expect(scratch.Delete(ctx, fetchPosts(scratch)[0])).To(Succeed())

			Expect(main.Update(post, "title", "Edited")).To(Succeed())
			Expect(co.SaveAndWait(ctx, scratch)).To(Succeed())
			Expect(post.Get("title")).To(Equal("Edited"))

			Expect(co.SaveAndWait(ctx, main)).To(Succeed())
			stored, err := st.Read(ctx, post.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Get("title")).To(Equal("Edited"))
		})

		It("assigns a permanent identity only once", func() {
			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			post := insertPost(d, "Handoff")

			Expect(co.ObtainPermanentIdentity(ctx, post)).To(BeTrue())
			first := post.ID()
			Expect(first.Temporary).To(BeFalse())

			Expect(co.ObtainPermanentIdentity(ctx, post)).To(BeFalse())
			Expect(post.ID()).To(Equal(first))

			_, err = d.ObtainPermanentIdentity(ctx, post)
			Expect(err).To(MatchError(identity.ErrAlreadyPermanent))
		})

		It("reports false for objects no context owns", func() {
			stray := graph.New("Post")
			Expect(co.ObtainPermanentIdentity(ctx, stray)).To(BeFalse())
		})

		It("reflects a derived save in main without a fetch", func() {
			main := co.MainContext()
			o := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())
			Expect(o.ID().Temporary).To(BeFalse())

			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			posts := fetchPosts(d)
			Expect(posts).To(HaveLen(1))
			Expect(posts[0].Get("title")).To(Equal("Draft"))

			Expect(d.Update(posts[0], "title", "Final")).To(Succeed())
			Expect(co.SaveAndWait(ctx, d)).To(Succeed())

			Expect(o.Get("title")).To(Equal("Final"))
		})

		It("refreshes a grandchild through its stale parent", func() {
			main := co.MainContext()
			post := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			middle := fetchPosts(d)[0]
			grand := d.NewChild("grandchild")
			cached := fetchPosts(grand)[0]

			Expect(main.Update(post, "title", "Final")).To(Succeed())
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			Expect(grand.Sync(ctx)).To(Succeed())
			Expect(cached.Get("title")).To(Equal("Final"))
			Expect(middle.Get("title")).To(Equal("Draft"))

			Expect(d.Sync(ctx)).To(Succeed())
			Expect(middle.Get("title")).To(Equal("Final"))
		})

		It("stops merging into released contexts", func() {
			main := co.MainContext()
			post := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			cached := fetchPosts(d)[0]
			d.Release()

			Expect(main.Update(post, "title", "Final")).To(Succeed())
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())
			Expect(cached.Get("title")).To(Equal("Draft"))
		})

		It("keeps local edits over incoming merges", func() {
			main := co.MainContext()
			post := insertPost(main, "Draft")
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())

			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			cached := fetchPosts(d)[0]
			Expect(d.Update(cached, "body", "local")).To(Succeed())

			var last *editing.Record
			unsubscribe := co.Subscribe(func(rec *editing.Record) { last = rec })
			defer unsubscribe()

			Expect(main.Update(post, "title", "Final")).To(Succeed())
			Expect(co.SaveAndWait(ctx, main)).To(Succeed())
			Expect(last).NotTo(BeNil())
			Expect(cached.Get("title")).To(Equal("Draft"))

			Expect(d.Discard(ctx)).To(Succeed())
			Expect(cached.Get("title")).To(Equal("Final"))
			Expect(cached.Get("body")).To(BeNil())

			Expect(co.Merge(ctx, d, last)).To(Succeed())
			Expect(cached.Get("title")).To(Equal("Final"))
		})
	})

	Describe("SaveAsync", func() {
		It("reports the record to the callback", func() {
			co = open()
			main := co.MainContext()
			insertPost(main, "Async")

			recs := make(chan *editing.Record, 1)
			co.SaveAsync(main, func(rec *editing.Record, err error) {
				defer GinkgoRecover()
				Expect(err).NotTo(HaveOccurred())
				recs <- rec
			})

			var rec *editing.Record
			Eventually(recs).Should(Receive(&rec))
			Expect(rec.Persisted).To(BeTrue())
			Expect(rec.Inserted).To(HaveLen(1))
		})

		It("orders saves of one derived context", func() {
			co = open()
			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			insertPost(d, "First")

			var (
				mu    sync.Mutex
				order []int
			)
			for i := range 3 {
				co.SaveAsync(d, func(_ *editing.Record, err error) {
					defer GinkgoRecover()
					Expect(err).NotTo(HaveOccurred())
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
				})
			}

			Eventually(func() []int {
				mu.Lock()
				defer mu.Unlock()
				return slices.Clone(order)
			}).Should(Equal([]int{0, 1, 2}))
			Expect(co.MainContext().HasChanges()).To(BeTrue())
		})

		It("reports a full queue", func() {
			co = open(coordinator.WithSaveQueueSize(1))
			main := co.MainContext()
			insertPost(main, "Blocked")
			entered, release := st.HoldWrites()
			defer release()

			co.SaveAsync(main, nil)
			<-entered
			co.SaveAsync(main, nil)

			errs := make(chan error, 1)
			co.SaveAsync(main, func(_ *editing.Record, err error) { errs <- err })
			Eventually(errs).Should(Receive(MatchError(coordinator.ErrQueueFull)))
		})

		It("fails for released contexts", func() {
			co = open()
			d, err := co.NewDerivedContext()
			Expect(err).NotTo(HaveOccurred())
			d.Release()

			errs := make(chan error, 1)
			co.SaveAsync(d, func(_ *editing.Record, err error) { errs <- err })
			Eventually(errs).Should(Receive(MatchError(editing.ErrReleased)))
		})
	})

	Describe("PerformChanges", func() {
		BeforeEach(func() {
			co = open()
		})

		It("saves the changes through to the store", func() {
			err := co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
				insertPost(c, "Imported")
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			posts, err := st.Fetch(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(1))
			Expect(co.MainContext().HasChanges()).To(BeFalse())

			Expect(fetchPosts(co.MainContext())).To(HaveLen(1))
		})

		It("saves nothing when the function fails", func() {
			err := co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
				insertPost(c, "Lost")
				return errors.New("abort")
			})
			Expect(err).To(MatchError("abort"))
			Expect(st.BatchCount()).To(BeZero())
			Expect(co.MainContext().HasChanges()).To(BeFalse())
		})

		It("surfaces validation errors", func() {
			err := co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
				return c.Insert(graph.New("Tag"))
			})
			Expect(err).To(HaveOccurred())
			Expect(st.BatchCount()).To(BeZero())
		})

		It("runs asynchronously", func() {
			errs := make(chan error, 1)
			co.PerformChangesAsync(func(_ context.Context, c *editing.Context) error {
				insertPost(c, "Background")
				return nil
			}, func(err error) { errs <- err })

			Eventually(errs).Should(Receive(BeNil()))
			posts, err := st.Fetch(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(1))
		})

		It("does not conflict with a main save requested while it is queued", func() {
			main := co.MainContext()
			unblock := make(chan struct{})
			co.SaveAsync(main, func(*editing.Record, error) { <-unblock })

			performed := make(chan error, 1)
			go func() {
				performed <- co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
					post := graph.New("Post")
					post.Set("title", "Queued")
					return c.Insert(post)
				})
			}()
			Eventually(main.HasChanges).Should(BeTrue())

			saved := make(chan error, 1)
			go func() {
				saved <- co.SaveAndWait(ctx, main)
			}()
			close(unblock)

			Eventually(performed).Should(Receive(BeNil()))
			Eventually(saved).Should(Receive(BeNil()))
			Expect(st.BatchCount()).To(Equal(1))
			Expect(main.HasChanges()).To(BeFalse())
		})

		It("publishes one event per store write", func() {
			Expect(co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
				insertPost(c, "Published")
				return nil
			})).To(Succeed())

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeSavePersisted))
			Expect(events[0].Source.Context).To(Equal(coordinator.MainContextName))
			Expect(events[0].Changes.Inserted).To(HaveLen(1))
		})
	})

	Describe("Read", func() {
		BeforeEach(func() {
			co = open()
			Expect(co.PerformChanges(ctx, func(_ context.Context, c *editing.Context) error {
				insertPost(c, "Stored")
				return nil
			})).To(Succeed())
		})

		It("sees committed objects and saves nothing", func() {
			batches := st.BatchCount()
			var seen *editing.Context
			err := co.Read(ctx, func(_ context.Context, c *editing.Context) error {
				seen = c
				posts := fetchPosts(c)
				Expect(posts).To(HaveLen(1))
				return c.Update(posts[0], "title", "Scratch")
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(st.BatchCount()).To(Equal(batches))
			Expect(seen.HasChanges()).To(BeFalse())
			Expect(fetchPosts(co.MainContext())[0].Get("title")).To(Equal("Stored"))
		})

		It("returns the function's error", func() {
			err := co.Read(ctx, func(context.Context, *editing.Context) error {
				return errors.New("boom")
			})
			Expect(err).To(MatchError("boom"))
		})
	})

	Describe("Close", func() {
		It("rejects new work and closes the publisher", func() {
			co = open()
			Expect(co.Close()).To(Succeed())

			_, err := co.NewDerivedContext()
			Expect(err).To(MatchError(coordinator.ErrClosed))
			Expect(co.SaveAndWait(ctx, co.MainContext())).To(MatchError(coordinator.ErrClosed))

			errs := make(chan error, 1)
			co.PerformChangesAsync(func(context.Context, *editing.Context) error { return nil },
				func(err error) { errs <- err })
			Eventually(errs).Should(Receive(MatchError(coordinator.ErrClosed)))

			pub.mu.Lock()
			Expect(pub.closed).To(BeTrue())
			pub.mu.Unlock()
		})
	})
})
