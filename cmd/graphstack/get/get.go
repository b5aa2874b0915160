// Package getcmder provides the get command, which prints stored objects.
package getcmder

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/cliui"
	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/graph"
)

const getLongDesc string = `Print stored objects.

With only an entity name every stored object of that entity is printed.
With a key the single object with that identity is printed.

Examples:
  graphstack get Post
  graphstack get Post 3`

const getShortDesc string = "Print stored objects"

type GetCommander struct {
	flags stack.Flags
}

func NewGetCmd() *cobra.Command {
	cmder := &GetCommander{}

	cmd := &cobra.Command{
		Use:   "get <entity> [key]",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)

	return cmd
}

func (c *GetCommander) run(cmd *cobra.Command, args []string) error {
	cfg, configDir, err := stack.Resolve(cmd, stack.StoreFlagKeys)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")

	s, err := stack.Open(cmd.Context(), stack.Options{
		ConfigDir: configDir,
		Config:    cfg,
		Logger:    stack.NewLogger(debug),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	root := s.Coordinator.MainContext()
	objs, err := lookup(cmd.Context(), root, args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, obj := range objs {
		printObject(w, obj)
	}
	if len(objs) == 0 {
		fmt.Fprintf(w, "  %s No %s objects.\n", cliui.DimStyle.Render("●"), args[0])
	}
	return nil
}

func lookup(ctx context.Context, c *editing.Context, args []string) ([]*graph.Object, error) {
	if len(args) == 2 {
		id := graph.NewIdentity(args[0], args[1])
		obj, ok, err := c.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s not found", id)
		}
		return []*graph.Object{obj}, nil
	}

	seq, err := c.Fetch(ctx, editing.FetchRequest{Entity: args[0]})
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func printObject(w io.Writer, obj *graph.Object) {
	fmt.Fprintf(w, "\n%s\n", cliui.IdentStyle.Render(obj.ID().String()))

	attrs := obj.Attributes()
	rels := obj.Relationships()
	width := 0
	for name := range attrs {
		width = max(width, len(name))
	}
	for name := range rels {
		width = max(width, len(name))
	}

	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		v := attrs[name]
		value := ""
		if v != nil {
			value = fmt.Sprint(v)
		}
		cliui.KeyValue(w, width, name, value)
	}
	for _, name := range slices.Sorted(maps.Keys(rels)) {
		ids := make([]string, 0, len(rels[name]))
		for _, id := range rels[name] {
			ids = append(ids, id.String())
		}
		cliui.KeyValue(w, width, name, strings.Join(ids, ", "))
	}
}
