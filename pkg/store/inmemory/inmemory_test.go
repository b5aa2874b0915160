package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/store/inmemory"
	"github.com/papercomputeco/graphstack/pkg/store/storetest"
)

var _ = Describe("Driver", func() {
	storetest.DescribeStore(func(_ context.Context) store.Store {
		return inmemory.NewDriver()
	})

	It("keeps private copies of written objects", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()

		obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
		obj.Set("title", "before")
		Expect(d.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{obj}})).To(Succeed())
		obj.Set("title", "after")

		got, err := d.Read(ctx, obj.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Get("title")).To(Equal("before"))
		Expect(d.Count()).To(Equal(1))
	})
})
