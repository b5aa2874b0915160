package migrate_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/migrate"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

func entity(def *model.Definition, name string) *model.EntityDefinition {
	for i := range def.Entities {
		if def.Entities[i].Name == name {
			return &def.Entities[i]
		}
	}
	Fail("no entity " + name)
	return nil
}

func asIncompatible(err error) *migrate.IncompatibleError {
	var ierr *migrate.IncompatibleError
	Expect(errors.As(err, &ierr)).To(BeTrue(), "expected IncompatibleError, got %v", err)
	return ierr
}

var _ = Describe("Run", func() {
	var (
		ctx context.Context
		st  *testutils.MockStore
		v1  *model.Model
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = testutils.NewMockStore()
		v1 = testutils.BlogModel()
	})

	v2With := func(edit func(def *model.Definition)) *model.Model {
		def := v1.Definition()
		def.Version = 2
		edit(&def)
		return testutils.MustModel(def)
	}

	It("writes the model into an empty store", func() {
		m, err := migrate.Run(ctx, st, v1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(v1))

		stored, err := st.LoadModel(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Version()).To(Equal(1))
	})

	It("does nothing when the store is current", func() {
		Expect(st.SaveModel(ctx, v1)).To(Succeed())

		_, err := migrate.Run(ctx, st, testutils.BlogModel(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.BatchCount()).To(BeZero())
	})

	It("upgrades additive changes and backfills defaults", func() {
		Expect(st.SaveModel(ctx, v1)).To(Succeed())
		post := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
		post.Set("title", "Hello")
		Expect(st.WriteBatch(ctx, store.Batch{Inserts: []*graph.Object{post}})).To(Succeed())

		v2 := v2With(func(def *model.Definition) {
			p := entity(def, "Post")
			p.Attributes = append(p.Attributes, model.AttributeDefinition{
				Name: "summary", Type: "string", Required: true, Default: "none",
			})
			def.Entities = append(def.Entities, model.EntityDefinition{
				Name:       "Series",
				Attributes: []model.AttributeDefinition{{Name: "title", Type: "string"}},
			})
		})

		m, err := migrate.Run(ctx, st, v2, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Version()).To(Equal(2))

		stored, err := st.LoadModel(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Version()).To(Equal(2))

		obj, err := st.Read(ctx, post.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(obj.Get("summary")).To(Equal("none"))
		Expect(obj.Get("title")).To(Equal("Hello"))
	})

	It("rejects a store written by a newer model", func() {
		Expect(st.SaveModel(ctx, v2With(func(*model.Definition) {}))).To(Succeed())

		_, err := migrate.Run(ctx, st, v1, nil)
		ierr := asIncompatible(err)
		Expect(ierr.From).To(Equal(2))
		Expect(ierr.To).To(Equal(1))
	})

	It("rejects a different model name", func() {
		def := v1.Definition()
		def.Name = "wiki"
		Expect(st.SaveModel(ctx, testutils.MustModel(def))).To(Succeed())

		_, err := migrate.Run(ctx, st, v1, nil)
		asIncompatible(err)
	})

	It("rejects definition changes without a version bump", func() {
		Expect(st.SaveModel(ctx, v1)).To(Succeed())

		def := v1.Definition()
		p := entity(&def, "Post")
		p.Attributes = append(p.Attributes, model.AttributeDefinition{Name: "summary", Type: "string"})

		_, err := migrate.Run(ctx, st, testutils.MustModel(def), nil)
		Expect(asIncompatible(err).Reason).To(ContainSubstring("version bump"))
	})

	It("rejects destructive changes and leaves the store model alone", func() {
		Expect(st.SaveModel(ctx, v1)).To(Succeed())

		v2 := v2With(func(def *model.Definition) {
			p := entity(def, "Post")
			for i := range p.Attributes {
				if p.Attributes[i].Name == "views" {
					p.Attributes[i].Type = "string"
					p.Attributes[i].Default = nil
				}
			}
		})

		_, err := migrate.Run(ctx, st, v2, nil)
		Expect(asIncompatible(err).Reason).To(ContainSubstring("changed type"))

		stored, err := st.LoadModel(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Version()).To(Equal(1))
	})
})

var _ = Describe("Diff", func() {
	var v1 *model.Model

	BeforeEach(func() {
		v1 = testutils.BlogModel()
	})

	edited := func(edit func(def *model.Definition)) *model.Model {
		def := v1.Definition()
		def.Version = 2
		edit(&def)
		return testutils.MustModel(def)
	}

	It("is empty for identical models", func() {
		plan, err := migrate.Diff(v1, testutils.BlogModel())
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Empty()).To(BeTrue())
	})

	It("lists additive changes", func() {
		v2 := edited(func(def *model.Definition) {
			a := entity(def, "Author")
			a.Attributes = append(a.Attributes, model.AttributeDefinition{Name: "bio", Type: "string"})
			a.Attributes = append(a.Attributes, model.AttributeDefinition{Name: "active", Type: "bool", Default: true})
		})

		plan, err := migrate.Diff(v1, v2)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Changes).To(ConsistOf(
			migrate.Change{Kind: migrate.AddAttribute, Entity: "Author", Member: "bio"},
			migrate.Change{Kind: migrate.AddAttribute, Entity: "Author", Member: "active", Backfill: true},
		))
		Expect(plan.BackfillEntities()).To(Equal([]string{"Author"}))
	})

	It("refuses removed entities", func() {
		v2 := edited(func(def *model.Definition) {
			var kept []model.EntityDefinition
			for _, e := range def.Entities {
				if e.Name == "Comment" {
					continue
				}
				if e.Name == "Post" {
					var rels []model.RelationshipDefinition
					for _, r := range e.Relationships {
						if r.Name != "comments" {
							rels = append(rels, r)
						}
					}
					e.Relationships = rels
				}
				kept = append(kept, e)
			}
			def.Entities = kept
		})

		_, err := migrate.Diff(v1, v2)
		Expect(err).To(MatchError(ContainSubstring("entity Comment was removed")))
	})

	It("refuses new required attributes without defaults", func() {
		v2 := edited(func(def *model.Definition) {
			t := entity(def, "Tag")
			t.Attributes = append(t.Attributes, model.AttributeDefinition{Name: "slug", Type: "string", Required: true})
		})

		_, err := migrate.Diff(v1, v2)
		Expect(err).To(MatchError(ContainSubstring("no default")))
	})
})
