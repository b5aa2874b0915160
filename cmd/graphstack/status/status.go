// Package statuscmder provides the status command: the store's model, its
// object counts and the state of a running watcher.
package statuscmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/cliui"
	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/watchstate"
)

const statusLongDesc string = `Show the state of the graphstack store.

Prints the storage driver, the model persisted in the store with the number
of stored objects per entity, and the state recorded by a running
"graphstack watch".

Examples:
  graphstack status
  graphstack status --driver postgres --postgres postgres://localhost/graphstack`

const statusShortDesc string = "Show model, object counts and watcher state"

type StatusCommander struct {
	flags stack.Flags
}

func NewStatusCmd() *cobra.Command {
	cmder := &StatusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)

	return cmd
}

func (c *StatusCommander) run(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	cfg, configDir, err := stack.Resolve(cmd, stack.StoreFlagKeys)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")

	fmt.Fprintln(w)
	cliui.KeyValue(w, 8, "Driver", cfg.Storage.Driver)

	s, err := stack.Open(cmd.Context(), stack.Options{
		ConfigDir: configDir,
		Config:    cfg,
		Logger:    stack.NewLogger(debug),
	})
	switch {
	case errors.Is(err, store.ErrNoModel):
		fmt.Fprintf(w, "  %s No model in store. Run graphstack init --model <file>.\n", cliui.DimStyle.Render("●"))
	case err != nil:
		return err
	default:
		defer s.Close()
		if err := printModel(cmd.Context(), w, s.Coordinator); err != nil {
			return err
		}
	}

	return printWatcher(w, configDir)
}

func printModel(ctx context.Context, w io.Writer, co *coordinator.Coordinator) error {
	m := co.Model()
	cliui.KeyValue(w, 8, "Model", m.Name())
	cliui.KeyValue(w, 8, "Version", strconv.Itoa(m.Version()))
	fmt.Fprintln(w)

	root := co.MainContext()
	for _, e := range m.Entities() {
		seq, err := root.Fetch(ctx, editing.FetchRequest{Entity: e.Name()})
		if err != nil {
			return err
		}
		n := 0
		for range seq {
			n++
		}
		fmt.Fprintf(w, "  %s %s\n",
			cliui.IdentStyle.Render(fmt.Sprintf("%-16s", e.Name())),
			cliui.ValueStyle.Render(strconv.Itoa(n)),
		)
	}
	fmt.Fprintln(w)
	return nil
}

func printWatcher(w io.Writer, configDir string) error {
	manager, err := watchstate.NewManager(configDir)
	if err != nil {
		return err
	}
	state, err := manager.LoadState()
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Fprintf(w, "  %s No watcher running.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(w, "  %s %s (pid %d)\n", cliui.KeyStyle.Render("Watching:"), state.Dir, state.PID)
	fmt.Fprintf(w, "  %s %d files, %d inserted, %d updated\n",
		cliui.KeyStyle.Render("Imported:"), state.Files, state.Inserted, state.Updated)
	if state.LastError != "" {
		fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, cliui.KeyStyle.Render("Last error:"), state.LastError)
	}
	fmt.Fprintln(w)
	return nil
}
