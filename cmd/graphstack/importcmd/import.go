// Package importcmder provides the import command, which loads JSON
// documents into the store.
package importcmder

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/cliui"
	"github.com/papercomputeco/graphstack/pkg/importer"
)

const importLongDesc string = `Import JSON documents into the store.

Each document is applied in its own derived context and saved through the
main context to the store, so a document lands whole or not at all:

  {"objects": [
    {"ref": "ada", "entity": "Author", "attributes": {"name": "Ada"}},
    {"ref": "p1", "entity": "Post", "attributes": {"title": "Hello"},
     "links": {"author": ["ada"]}}
  ]}

Objects with a "key" update the stored object of that key. Links name
document refs or stored identities ("Author/2").

Examples:
  graphstack import posts.json
  graphstack import --dry-run inbox/*.json`

const importShortDesc string = "Import JSON documents"

type ImportCommander struct {
	flags  stack.Flags
	dryRun bool
}

func NewImportCmd() *cobra.Command {
	cmder := &ImportCommander{}

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Validate documents without saving")

	return cmd
}

func (c *ImportCommander) run(cmd *cobra.Command, files []string) error {
	w := cmd.OutOrStdout()

	cfg, configDir, err := stack.Resolve(cmd, stack.StoreFlagKeys)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	log := stack.NewLogger(debug)

	s, err := stack.Open(cmd.Context(), stack.Options{
		ConfigDir: configDir,
		Config:    cfg,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	im := importer.New(s.Coordinator, importer.Options{
		DryRun: c.dryRun,
		Logger: log,
	})

	total := &importer.Result{}
	for _, path := range files {
		err := cliui.Step(w, "Importing "+filepath.Base(path), func() error {
			result, err := im.ImportFile(cmd.Context(), path)
			total.Add(result)
			return err
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\n%s\n", total.Summary())
	return nil
}
