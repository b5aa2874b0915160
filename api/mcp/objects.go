package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
)

const defaultListLimit = 50

var (
	listObjectsToolName    = "list_objects"
	listObjectsDescription = "List stored objects of one entity. Optionally filter by exact attribute values. Returns each object's identity, attributes and relationships."

	getObjectToolName    = "get_object"
	getObjectDescription = "Get one stored object by identity, written as <entity>/<key> (for example Post/1)."
)

// Object is the tool form of a graph object. Identities are rendered as
// "<entity>/<key>".
type Object struct {
	ID            string              `json:"id"`
	Attributes    map[string]any      `json:"attributes"`
	Relationships map[string][]string `json:"relationships,omitempty"`
}

func newObject(obj *graph.Object) Object {
	snap := obj.Snapshot()
	out := Object{
		ID:         snap.ID.String(),
		Attributes: snap.Attributes,
	}
	if len(snap.Relationships) > 0 {
		out.Relationships = make(map[string][]string, len(snap.Relationships))
		for name, ids := range snap.Relationships {
			targets := make([]string, len(ids))
			for i, id := range ids {
				targets[i] = id.String()
			}
			out.Relationships[name] = targets
		}
	}
	return out
}

// ListObjectsInput represents the input arguments for the list_objects tool.
type ListObjectsInput struct {
	Entity string         `json:"entity" jsonschema:"the entity whose objects to list"`
	Match  map[string]any `json:"match,omitempty" jsonschema:"attribute values an object must have to be listed"`
	Limit  int            `json:"limit,omitempty" jsonschema:"maximum number of objects to return (default: 50)"`
}

// ListObjectsOutput represents the output of the list_objects tool.
type ListObjectsOutput struct {
	Entity    string   `json:"entity"`
	Objects   []Object `json:"objects"`
	Count     int      `json:"count"`
	Truncated bool     `json:"truncated"`
}

func (s *Server) handleListObjects(ctx context.Context, _ *mcp.CallToolRequest, input ListObjectsInput) (*mcp.CallToolResult, ListObjectsOutput, error) {
	logger := s.config.Logger
	co := s.config.Coordinator

	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	logger.Debug("MCP list request", "entity", input.Entity, "match", len(input.Match), "limit", limit)

	entity, err := co.Model().Entity(input.Entity)
	if err != nil {
		return errorResult("Unknown entity %q", input.Entity), ListObjectsOutput{}, nil
	}
	match, err := coerceMatch(entity, input.Match)
	if err != nil {
		return errorResult("Invalid match: %v", err), ListObjectsOutput{}, nil
	}

	output := ListObjectsOutput{Entity: entity.Name(), Objects: []Object{}}
	err = co.Read(ctx, func(ctx context.Context, c *editing.Context) error {
		seq, err := c.Fetch(ctx, editing.FetchRequest{
			Entity:    entity.Name(),
			Predicate: match,
		})
		if err != nil {
			return err
		}
		for obj := range seq {
			output.Count++
			if len(output.Objects) < limit {
				output.Objects = append(output.Objects, newObject(obj))
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to list objects", "entity", input.Entity, "error", err)
		return errorResult("Failed to list objects: %v", err), ListObjectsOutput{}, nil
	}
	output.Truncated = output.Count > len(output.Objects)

	return s.jsonResult(output), output, nil
}

// coerceMatch builds a fetch predicate from attribute values, coerced to the
// attribute types so JSON numbers compare equal to stored integers.
func coerceMatch(entity *model.Entity, match map[string]any) (func(*graph.Object) bool, error) {
	if len(match) == 0 {
		return nil, nil
	}

	want := make(map[string]any, len(match))
	for _, name := range slices.Sorted(maps.Keys(match)) {
		attr, err := entity.Attribute(name)
		if err != nil {
			return nil, err
		}
		v, err := attr.Type.Coerce(match[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		want[name] = v
	}

	return func(obj *graph.Object) bool {
		for name, v := range want {
			if fmt.Sprint(obj.Get(name)) != fmt.Sprint(v) {
				return false
			}
		}
		return true
	}, nil
}

// GetObjectInput represents the input arguments for the get_object tool.
type GetObjectInput struct {
	ID string `json:"id" jsonschema:"the object identity as <entity>/<key>"`
}

// GetObjectOutput represents the output of the get_object tool.
type GetObjectOutput struct {
	Found  bool    `json:"found"`
	Object *Object `json:"object,omitempty"`
}

func (s *Server) handleGetObject(ctx context.Context, _ *mcp.CallToolRequest, input GetObjectInput) (*mcp.CallToolResult, GetObjectOutput, error) {
	logger := s.config.Logger
	co := s.config.Coordinator

	logger.Debug("MCP get request", "id", input.ID)

	id, err := graph.ParseIdentity(input.ID)
	if err != nil {
		return errorResult("Invalid identity: %v", err), GetObjectOutput{}, nil
	}
	if _, err := co.Model().Entity(id.Entity); err != nil {
		return errorResult("Unknown entity %q", id.Entity), GetObjectOutput{}, nil
	}

	var output GetObjectOutput
	err = co.Read(ctx, func(ctx context.Context, c *editing.Context) error {
		obj, ok, err := c.Resolve(ctx, id)
		if err != nil || !ok {
			return err
		}
		o := newObject(obj)
		output = GetObjectOutput{Found: true, Object: &o}
		return nil
	})
	if errors.Is(err, editing.ErrForeignTemporaryIdentity) {
		return errorResult("%s is a temporary identity", id), GetObjectOutput{}, nil
	}
	if err != nil {
		logger.Error("failed to get object", "id", input.ID, "error", err)
		return errorResult("Failed to get object: %v", err), GetObjectOutput{}, nil
	}

	return s.jsonResult(output), output, nil
}
