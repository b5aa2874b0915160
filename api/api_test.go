package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/logger"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

const blogDocument = `{"objects": [
	{"ref": "ada", "entity": "Author", "attributes": {"name": "Ada"}},
	{"ref": "go", "entity": "Tag", "attributes": {"label": "go"}},
	{"entity": "Post", "attributes": {"title": "Hello", "views": 2}, "links": {"author": ["ada"], "tags": ["go"]}}
]}`

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		st     *testutils.MockStore
		co     *coordinator.Coordinator
		server *Server
	)

	newServer := func(cfg Config) *Server {
		s, err := NewServer(cfg, co, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	do := func(method, target, body string) (int, string) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(data)
	}

	importBlog := func() {
		status, body := do(http.MethodPost, "/v1/import", blogDocument)
		Expect(status).To(Equal(http.StatusOK), body)
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = testutils.NewMockStore()

		var err error
		co, err = coordinator.Open(ctx, st, testutils.BlogModel())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(co.Close)

		server = newServer(Config{ListenAddr: ":0"})
	})

	It("answers ping", func() {
		status, body := do(http.MethodGet, "/ping", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`"pong"`))
	})

	It("serves the model definition", func() {
		status, body := do(http.MethodGet, "/v1/model", "")
		Expect(status).To(Equal(http.StatusOK))

		var def struct {
			Name     string `json:"name"`
			Entities []struct {
				Name string `json:"name"`
			} `json:"entities"`
		}
		Expect(json.Unmarshal([]byte(body), &def)).To(Succeed())
		Expect(def.Name).To(Equal("blog"))
		Expect(def.Entities).To(HaveLen(4))
	})

	Describe("import", func() {
		It("imports a document in one save", func() {
			status, body := do(http.MethodPost, "/v1/import", blogDocument)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"files": 0, "inserted": 3, "updated": 0, "linked": 2}`))
			Expect(st.BatchCount()).To(Equal(1))
		})

		It("saves nothing on a dry run", func() {
			status, _ := do(http.MethodPost, "/v1/import?dry_run=true", blogDocument)
			Expect(status).To(Equal(http.StatusOK))
			Expect(st.BatchCount()).To(BeZero())
		})

		It("rejects malformed documents", func() {
			status, body := do(http.MethodPost, "/v1/import", `{"things": []}`)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(ContainSubstring("failed to parse import document"))
		})

		It("rejects documents that fail validation", func() {
			status, _ := do(http.MethodPost, "/v1/import", `{"objects": [{"entity": "Post", "attributes": {"body": "untitled"}}]}`)
			Expect(status).To(Equal(http.StatusUnprocessableEntity))

			status, _ = do(http.MethodPost, "/v1/import", `{"objects": [{"entity": "Nope"}]}`)
			Expect(status).To(Equal(http.StatusUnprocessableEntity))
			Expect(st.BatchCount()).To(BeZero())
		})

		It("reports store failures as server errors", func() {
			st.FailWrites(true)
			status, _ := do(http.MethodPost, "/v1/import", blogDocument)
			Expect(status).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("objects", func() {
		BeforeEach(importBlog)

		It("lists the objects of an entity", func() {
			status, body := do(http.MethodGet, "/v1/objects/Post", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp ObjectsResponse
			Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(1))
			Expect(resp.Objects).To(HaveLen(1))
			Expect(resp.Objects[0].ID).To(Equal(graph.NewIdentity("Post", "1")))
			Expect(resp.Objects[0].Attributes).To(HaveKeyWithValue("title", "Hello"))
			Expect(resp.Objects[0].Relationships["author"]).To(Equal([]graph.Identity{graph.NewIdentity("Author", "1")}))
		})

		It("caps the list with a limit", func() {
			importBlog()
			status, body := do(http.MethodGet, "/v1/objects/Post?limit=1", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp ObjectsResponse
			Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Objects).To(HaveLen(1))
		})

		It("returns 404 for an unknown entity", func() {
			status, _ := do(http.MethodGet, "/v1/objects/Nope", "")
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("gets one object", func() {
			status, body := do(http.MethodGet, "/v1/objects/Author/1", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{
				"id": "Author/1",
				"entity": "Author",
				"key": "1",
				"attributes": {"name": "Ada"},
				"relationships": {"posts": ["Post/1"]}
			}`))
		})

		It("returns 404 for a missing object", func() {
			status, body := do(http.MethodGet, "/v1/objects/Author/9", "")
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body).To(ContainSubstring("Author/9 not found"))
		})

		It("returns 400 for a temporary identity", func() {
			status, _ := do(http.MethodGet, "/v1/objects/Author/t-1", "")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("deletes with cascade", func() {
			status, body := do(http.MethodDelete, "/v1/objects/Author/1", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"deleted": "Author/1"}`))

			posts, err := st.Fetch(ctx, "Post")
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(BeEmpty())

			status, _ = do(http.MethodGet, "/v1/objects/Author/1", "")
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("refuses deletes a deny rule blocks", func() {
			status, _ := do(http.MethodDelete, "/v1/objects/Tag/1", "")
			Expect(status).To(Equal(http.StatusConflict))

			_, err := st.Read(ctx, graph.NewIdentity("Tag", "1"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns 404 deleting a missing object", func() {
			status, _ := do(http.MethodDelete, "/v1/objects/Tag/9", "")
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("read-only", func() {
		BeforeEach(func() {
			server = newServer(Config{ListenAddr: ":0", ReadOnly: true})
		})

		It("rejects writes", func() {
			status, _ := do(http.MethodPost, "/v1/import", blogDocument)
			Expect(status).To(Equal(http.StatusMethodNotAllowed))

			status, _ = do(http.MethodDelete, "/v1/objects/Author/1", "")
			Expect(status).To(Equal(http.StatusMethodNotAllowed))
			Expect(st.BatchCount()).To(BeZero())
		})

		It("still serves reads", func() {
			status, _ := do(http.MethodGet, "/v1/objects/Post", "")
			Expect(status).To(Equal(http.StatusOK))
		})
	})
})
