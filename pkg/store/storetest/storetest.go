// Package storetest holds the behaviour every store.Store backend must share.
// Backend test suites call DescribeStore from inside their own Describe.
package storetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/store"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

// DescribeStore registers the shared store specs. open is called before each
// spec and must return an empty store.
func DescribeStore(open func(ctx context.Context) store.Store) {
	var (
		ctx context.Context
		s   store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = nil
		s = open(ctx)
	})

	AfterEach(func() {
		if s != nil {
			s.Close()
		}
	})

	post := func(key, title string) *graph.Object {
		obj := graph.NewWithIdentity(graph.NewIdentity("Post", key))
		obj.Set("title", title)
		obj.Set("views", int64(1))
		return obj
	}

	Describe("models", func() {
		It("reports ErrNoModel before one is saved", func() {
			_, err := s.LoadModel(ctx)
			Expect(err).To(MatchError(store.ErrNoModel))
		})

		It("saves and loads the model", func() {
			Expect(s.SaveModel(ctx, testutils.BlogModel())).To(Succeed())

			m, err := s.LoadModel(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Name()).To(Equal("blog"))
			Expect(m.Entities()).To(HaveLen(4))
		})

		It("replaces a previously saved model", func() {
			Expect(s.SaveModel(ctx, testutils.BlogModel())).To(Succeed())

			def := testutils.BlogModel().Definition()
			def.Version = 2
			Expect(s.SaveModel(ctx, testutils.MustModel(def))).To(Succeed())

			m, err := s.LoadModel(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Version()).To(Equal(2))
		})
	})

	Describe("WriteBatch and Read", func() {
		It("stores inserted objects", func() {
			obj := post("1", "Hello")
			obj.SetRelated("author", []graph.Identity{graph.NewIdentity("Author", "7")})

			Expect(s.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{obj}})).To(Succeed())

			got, err := s.Read(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID()).To(Equal(obj.ID()))
			Expect(got.Get("title")).To(Equal("Hello"))
			Expect(got.Related("author")).To(Equal([]graph.Identity{graph.NewIdentity("Author", "7")}))
		})

		It("returns NotFoundError for missing objects", func() {
			_, err := s.Read(ctx, graph.NewIdentity("Post", "404"))
			Expect(store.IsNotFound(err)).To(BeTrue())
		})

		It("overwrites objects on update", func() {
			Expect(s.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{post("1", "Draft")}})).To(Succeed())
			Expect(s.WriteBatch(ctx, store.Batch{Updates: []*graph.Object{post("1", "Final")}})).To(Succeed())

			got, err := s.Read(ctx, graph.NewIdentity("Post", "1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Get("title")).To(Equal("Final"))
		})

		It("removes deleted objects", func() {
			Expect(s.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{post("1", "Gone")}})).To(Succeed())
			Expect(s.WriteBatch(ctx, store.Batch{Deletes: []graph.Identity{graph.NewIdentity("Post", "1")}})).To(Succeed())

			_, err := s.Read(ctx, graph.NewIdentity("Post", "1"))
			Expect(store.IsNotFound(err)).To(BeTrue())
		})

		It("round-trips time values through the model", func() {
			at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
			obj := post("1", "Timed")
			obj.Set("published_at", at)
			Expect(s.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{obj}})).To(Succeed())

			got, err := s.Read(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(testutils.BlogModel().Normalize(got)).To(Succeed())
			Expect(got.Get("published_at")).To(Equal(at))
			Expect(got.Get("views")).To(Equal(int64(1)))
		})

		It("rejects temporary identities and writes nothing", func() {
			tmp := graph.NewWithIdentity(graph.NewIdentity("Post", graph.TemporaryPrefix+"abc"))
			tmp.Set("title", "tmp")

			err := s.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{post("1", "ok"), tmp}})
			var werr *store.WriteError
			Expect(errors.As(err, &werr)).To(BeTrue())

			_, err = s.Read(ctx, graph.NewIdentity("Post", "1"))
			Expect(store.IsNotFound(err)).To(BeTrue())
		})

		It("accepts an empty batch", func() {
			Expect(s.WriteBatch(ctx, store.Batch{})).To(Succeed())
		})
	})

	Describe("Fetch", func() {
		It("returns the objects of one entity ordered by key", func() {
			author := graph.NewWithIdentity(graph.NewIdentity("Author", "1"))
			author.Set("name", "Ada")
			Expect(s.WriteBatch(ctx, store.Batch{
				Inserts: []*graph.Object{post("10", "ten"), post("2", "two"), author},
			})).To(Succeed())

			objs, err := s.Fetch(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			Expect(objs).To(HaveLen(2))
			Expect(objs[0].ID().Key).To(Equal("2"))
			Expect(objs[1].ID().Key).To(Equal("10"))
		})

		It("returns nothing for an empty entity", func() {
			objs, err := s.Fetch(ctx, "Tag")
			Expect(err).NotTo(HaveOccurred())
			Expect(objs).To(BeEmpty())
		})
	})

	Describe("MintPermanentIdentity", func() {
		It("mints increasing keys per entity", func() {
			first, err := s.MintPermanentIdentity(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			second, err := s.MintPermanentIdentity(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			other, err := s.MintPermanentIdentity(ctx, "Author")
			Expect(err).NotTo(HaveOccurred())

			Expect(first).To(Equal(graph.NewIdentity("Post", "1")))
			Expect(second).To(Equal(graph.NewIdentity("Post", "2")))
			Expect(other).To(Equal(graph.NewIdentity("Author", "1")))
			Expect(first.Temporary).To(BeFalse())
		})
	})
}
