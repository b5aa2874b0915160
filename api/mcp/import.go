package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/graphstack/pkg/importer"
)

var (
	importObjectsToolName    = "import_objects"
	importObjectsDescription = "Insert or update objects and link them in one atomic save. Objects with a key update the stored object; objects without one are inserted. Links point at refs declared in the same call or at stored identities written as <entity>/<key>."
)

// ImportObjectsInput represents the input arguments for the import_objects tool.
type ImportObjectsInput struct {
	Objects []importer.Object `json:"objects" jsonschema:"the objects to insert or update"`
	DryRun  bool              `json:"dry_run,omitempty" jsonschema:"apply the objects without saving them"`
}

func (s *Server) handleImportObjects(ctx context.Context, _ *mcp.CallToolRequest, input ImportObjectsInput) (*mcp.CallToolResult, importer.Result, error) {
	logger := s.config.Logger

	im := importer.New(s.config.Coordinator, importer.Options{
		DryRun: input.DryRun,
		Logger: logger,
	})
	result, err := im.Import(ctx, &importer.Document{Objects: input.Objects})
	if err != nil {
		logger.Warn("MCP import failed", "objects", len(input.Objects), "error", err)
		return errorResult("Import failed: %v", err), importer.Result{}, nil
	}

	logger.Info("MCP import",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"linked", result.Linked,
		"dry_run", input.DryRun,
	)
	return s.jsonResult(result), *result, nil
}
