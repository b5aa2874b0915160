package mcp_test

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/api/mcp"
	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/importer"
	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/store/inmemory"
	testutils "github.com/papercomputeco/graphstack/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		ctx context.Context
		co  *coordinator.Coordinator
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		co, err = coordinator.Open(ctx, inmemory.NewDriver(), testutils.BlogModel())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(co.Close)
	})

	Describe("NewServer", func() {
		It("returns an error when the coordinator is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("coordinator is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Coordinator: co})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{Coordinator: co, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("over a client session", func() {
		connect := func(cfg mcp.Config) *sdk.ClientSession {
			server, err := mcp.NewServer(cfg)
			Expect(err).NotTo(HaveOccurred())

			clientTransport, serverTransport := sdk.NewInMemoryTransports()
			ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ss.Close)

			client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
			cs, err := client.Connect(ctx, clientTransport, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(cs.Close)
			return cs
		}

		toolNames := func(cs *sdk.ClientSession) []string {
			res, err := cs.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			return names
		}

		It("lists the graph tools", func() {
			cs := connect(mcp.Config{Coordinator: co, Logger: logger.Nop()})
			Expect(toolNames(cs)).To(ConsistOf("describe_model", "list_objects", "get_object", "import_objects"))
		})

		It("leaves out the import tool when read-only", func() {
			cs := connect(mcp.Config{Coordinator: co, Logger: logger.Nop(), ReadOnly: true})
			Expect(toolNames(cs)).NotTo(ContainElement("import_objects"))
		})

		It("reads an imported object back", func() {
			_, err := importer.New(co, importer.Options{}).Import(ctx, &importer.Document{Objects: []importer.Object{
				{Entity: "Author", Attributes: map[string]any{"name": "Ada"}},
			}})
			Expect(err).NotTo(HaveOccurred())

			cs := connect(mcp.Config{Coordinator: co, Logger: logger.Nop()})
			res, err := cs.CallTool(ctx, &sdk.CallToolParams{
				Name:      "get_object",
				Arguments: map[string]any{"id": "Author/1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(res.Content).To(HaveLen(1))

			text, ok := res.Content[0].(*sdk.TextContent)
			Expect(ok).To(BeTrue())
			Expect(text.Text).To(MatchJSON(`{
				"found": true,
				"object": {"id": "Author/1", "attributes": {"name": "Ada"}}
			}`))
		})
	})
})
