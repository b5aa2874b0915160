// Package importer loads JSON documents into the store through derived
// contexts, one document per save.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/logger"
)

// Options configures import behavior.
type Options struct {
	// DryRun applies the document to a derived context and discards it
	// instead of saving.
	DryRun bool

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Importer applies documents through a coordinator.
type Importer struct {
	co      *coordinator.Coordinator
	options Options
	logger  *slog.Logger
}

// New creates an Importer.
func New(co *coordinator.Coordinator, opts Options) *Importer {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		co:      co,
		options: opts,
		logger:  log,
	}
}

// ImportFile reads and imports one document file.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	result, err := im.Import(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	result.Files = 1

	im.logger.Info("imported file",
		"path", path,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"linked", result.Linked,
		"dry_run", im.options.DryRun,
	)
	return result, nil
}

// Import applies doc in a derived context and saves it through to the
// store. Either the whole document lands or none of it does.
func (im *Importer) Import(ctx context.Context, doc *Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if im.options.DryRun {
		return im.dryRun(ctx, doc)
	}

	var result *Result
	err := im.co.PerformChanges(ctx, func(ctx context.Context, c *editing.Context) error {
		r, err := apply(ctx, c, doc)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (im *Importer) dryRun(ctx context.Context, doc *Document) (*Result, error) {
	var result *Result
	err := im.co.Read(ctx, func(ctx context.Context, c *editing.Context) error {
		r, err := apply(ctx, c, doc)
		if err != nil {
			return err
		}
		result = r
		return c.Validate()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// apply inserts and updates every object, then links them.
func apply(ctx context.Context, c *editing.Context, doc *Document) (*Result, error) {
	result := &Result{}
	refs := make(map[string]*graph.Object)
	objs := make([]*graph.Object, len(doc.Objects))

	for i, o := range doc.Objects {
		obj, err := materialize(ctx, c, o, result)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		objs[i] = obj
		if o.Ref != "" {
			refs[o.Ref] = obj
		}
	}

	for i, o := range doc.Objects {
		for _, rel := range slices.Sorted(maps.Keys(o.Links)) {
			for _, ref := range o.Links[rel] {
				target, err := resolveRef(ctx, c, refs, ref)
				if err != nil {
					return nil, fmt.Errorf("object %d link %s: %w", i, rel, err)
				}
				if err := c.Link(ctx, objs[i], rel, target); err != nil {
					return nil, fmt.Errorf("object %d link %s: %w", i, rel, err)
				}
				result.Linked++
			}
		}
	}

	return result, nil
}

func materialize(ctx context.Context, c *editing.Context, o Object, result *Result) (*graph.Object, error) {
	if o.Key == "" {
		obj := graph.New(o.Entity)
		for name, value := range o.Attributes {
			obj.Set(name, value)
		}
		if err := c.Insert(obj); err != nil {
			return nil, err
		}
		result.Inserted++
		return obj, nil
	}

	id := graph.NewIdentity(o.Entity, o.Key)
	obj, ok, err := c.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s does not exist", id)
	}
	for _, name := range slices.Sorted(maps.Keys(o.Attributes)) {
		if err := c.Update(obj, name, o.Attributes[name]); err != nil {
			return nil, err
		}
	}
	result.Updated++
	return obj, nil
}

// resolveRef finds a link target: a ref declared in the document, or a
// stored "<entity>/<key>" identity.
func resolveRef(ctx context.Context, c *editing.Context, refs map[string]*graph.Object, ref string) (*graph.Object, error) {
	if obj, ok := refs[ref]; ok {
		return obj, nil
	}
	if !strings.Contains(ref, "/") {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}

	id, err := graph.ParseIdentity(ref)
	if err != nil {
		return nil, err
	}
	obj, ok, err := c.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s does not exist", id)
	}
	return obj, nil
}
