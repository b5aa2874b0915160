package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/graphstack/pkg/model"
)

var (
	describeModelToolName    = "describe_model"
	describeModelDescription = "Describe the object model: every entity with its attributes, their types, and its relationships with their targets, inverses and delete rules."
)

// DescribeModelInput takes no arguments.
type DescribeModelInput struct{}

func (s *Server) handleDescribeModel(_ context.Context, _ *mcp.CallToolRequest, _ DescribeModelInput) (*mcp.CallToolResult, model.Definition, error) {
	def := s.config.Coordinator.Model().Definition()
	return s.jsonResult(def), def, nil
}
