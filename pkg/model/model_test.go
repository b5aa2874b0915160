package model_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

var _ = Describe("Model", func() {
	var m *model.Model

	BeforeEach(func() {
		m = testutils.BlogModel()
	})

	Describe("Parse", func() {
		It("keeps entity declaration order", func() {
			names := []string{}
			for _, e := range m.Entities() {
				names = append(names, e.Name())
			}
			Expect(names).To(Equal([]string{"Author", "Post", "Tag", "Comment"}))
			Expect(m.Name()).To(Equal("blog"))
			Expect(m.Version()).To(Equal(1))
		})

		It("coerces TOML defaults to canonical types", func() {
			post, err := m.Entity("Post")
			Expect(err).NotTo(HaveOccurred())

			views, err := post.Attribute("views")
			Expect(err).NotTo(HaveOccurred())
			Expect(views.Default).To(Equal(int64(0)))
		})

		It("defaults delete rules to nullify", func() {
			post, _ := m.Entity("Post")
			author, err := post.Relationship("author")
			Expect(err).NotTo(HaveOccurred())
			Expect(author.DeleteRule).To(Equal(model.DeleteNullify))
		})

		It("rejects inverses that do not point back", func() {
			_, err := model.New(model.Definition{
				Name: "broken",
				Entities: []model.EntityDefinition{
					{Name: "A", Relationships: []model.RelationshipDefinition{{Name: "b", Target: "B", Inverse: "a"}}},
					{Name: "B", Relationships: []model.RelationshipDefinition{{Name: "a", Target: "A", Inverse: "other"}}},
				},
			})
			var schemaErr *model.SchemaError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
			Expect(schemaErr.Reason).To(ContainSubstring("does not point back"))
		})

		It("rejects unknown attribute types", func() {
			_, err := model.Parse([]byte(`
name = "x"
[[entities]]
name = "A"
  [[entities.attributes]]
  name = "n"
  type = "decimal"
`))
			Expect(err).To(MatchError(ContainSubstring("unknown type")))
		})

		It("loads from a file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "model.toml")
			Expect(os.WriteFile(path, []byte(testutils.BlogModelTOML), 0o600)).To(Succeed())

			loaded, err := model.LoadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Entities()).To(HaveLen(4))
		})

		It("round-trips through JSON", func() {
			data, err := json.Marshal(m)
			Expect(err).NotTo(HaveOccurred())

			back, err := model.FromJSON(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(back.Definition().Entities).To(HaveLen(4))

			post, _ := back.Entity("Post")
			views, _ := post.Attribute("views")
			Expect(views.Default).To(Equal(int64(0)))
		})
	})

	Describe("lookups", func() {
		It("fails unknown entities with a SchemaError", func() {
			_, err := m.Entity("Nope")
			var schemaErr *model.SchemaError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
			Expect(schemaErr.Entity).To(Equal("Nope"))
		})

		It("fails unknown attributes with a SchemaError", func() {
			post, _ := m.Entity("Post")
			_, err := post.Attribute("nope")
			var schemaErr *model.SchemaError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
		})

		It("resolves inverses", func() {
			post, _ := m.Entity("Post")
			tags, _ := post.Relationship("tags")
			inv := m.Inverse(tags)
			Expect(inv).NotTo(BeNil())
			Expect(inv.Name).To(Equal("posts"))
		})
	})

	Describe("ValidateObject", func() {
		It("accepts a complete object", func() {
			obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
			obj.Set("title", "Draft")
			obj.Set("views", int64(3))
			obj.Set("published_at", time.Now())
			Expect(m.ValidateObject(obj, true)).To(Succeed())
		})

		It("reports every violation", func() {
			obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
			obj.Set("views", "many")
			obj.Set("colour", "red")
			obj.SetRelated("author", []graph.Identity{graph.NewIdentity("Author", "1"), graph.NewIdentity("Author", "2")})

			err := m.ValidateObject(obj, true)
			var verr *model.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Violations).To(HaveLen(4))
		})

		It("skips required checks for partial validation", func() {
			obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
			Expect(m.ValidateObject(obj, false)).To(Succeed())
		})

		It("rejects targets of the wrong entity", func() {
			obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
			obj.Set("title", "x")
			obj.SetRelated("tags", []graph.Identity{graph.NewIdentity("Author", "1")})
			Expect(m.ValidateObject(obj, true)).To(MatchError(ContainSubstring("is not a Tag")))
		})

		It("rejects unknown entities", func() {
			obj := graph.New("Ghost")
			Expect(m.ValidateObject(obj, true)).To(MatchError(ContainSubstring("unknown entity")))
		})
	})

	Describe("Normalize", func() {
		It("coerces JSON-decoded values and fills defaults", func() {
			obj := graph.NewWithIdentity(graph.NewIdentity("Post", "1"))
			obj.Set("title", "Draft")
			obj.Set("rating", float64(4))
			obj.Set("published_at", "2024-01-02T03:04:05Z")
			obj.Set("removed", "gone")

			Expect(m.Normalize(obj)).To(Succeed())
			Expect(obj.Get("views")).To(Equal(int64(0)))
			Expect(obj.Get("published")).To(Equal(false))
			Expect(obj.Get("published_at")).To(Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
			Expect(obj.Get("removed")).To(BeNil())
			Expect(m.ValidateObject(obj, true)).To(Succeed())
		})
	})
})

var _ = Describe("AttributeType", func() {
	DescribeTable("Coerce",
		func(t model.AttributeType, in any, want any) {
			got, err := t.Coerce(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("int from int", model.TypeInt, 3, int64(3)),
		Entry("int from JSON float", model.TypeInt, float64(7), int64(7)),
		Entry("int from json.Number", model.TypeInt, json.Number("9"), int64(9)),
		Entry("float from int", model.TypeFloat, 2, float64(2)),
		Entry("bytes from base64", model.TypeBytes, "YWJj", []byte("abc")),
		Entry("nil passes through", model.TypeString, nil, nil),
	)

	It("refuses fractional ints", func() {
		_, err := model.TypeInt.Coerce(1.5)
		Expect(err).To(HaveOccurred())
	})
})
