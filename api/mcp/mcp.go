// Package mcp exposes the object graph to MCP (Model Context Protocol)
// clients: the model, object reads and document imports.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/utils"
)

type Config struct {
	// Coordinator serves every read and import. Required.
	Coordinator *coordinator.Coordinator

	// ReadOnly leaves out the import tool.
	ReadOnly bool

	// Logger is the provided slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates an MCP server with the graph tools registered.
func NewServer(c Config) (*Server, error) {
	if c.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "graphstack",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        describeModelToolName,
		Description: describeModelDescription,
	}, s.handleDescribeModel)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listObjectsToolName,
		Description: listObjectsDescription,
	}, s.handleListObjects)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getObjectToolName,
		Description: getObjectDescription,
	}, s.handleGetObject)

	if !c.ReadOnly {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        importObjectsToolName,
			Description: importObjectsDescription,
		}, s.handleImportObjects)
	}

	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for transports other than HTTP.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// errorResult reports a tool failure to the client. Tool failures are results,
// not protocol errors.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// jsonResult serializes out into a text block alongside the structured output
// for clients that only read text content.
func (s *Server) jsonResult(out any) *mcp.CallToolResult {
	data, err := json.Marshal(out)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", "error", err)
		return errorResult("Failed to serialize results: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}
