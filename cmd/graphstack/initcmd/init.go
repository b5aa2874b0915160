// Package initcmder provides the init command: it creates a local
// .graphstack directory and, given a model definition, the store.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/cliui"
	"github.com/papercomputeco/graphstack/pkg/config"
	"github.com/papercomputeco/graphstack/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .graphstack/ directory in the current working directory.

Creates a local .graphstack/ directory with a default config.toml. The local
directory takes precedence over ~/.graphstack/ for configuration and the
default SQLite database.

When a model definition is available (--model, model.path, or model.toml in
the directory) the store is opened and the model written to it. Running init
again with a newer model version upgrades the store.

Examples:
  graphstack init
  graphstack init --model blog.toml`

const initShortDesc string = "Initialize a local .graphstack/ directory"

type InitCommander struct {
	flags stack.Flags
}

func NewInitCmd() *cobra.Command {
	cmder := &InitCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)

	return cmd
}

func (c *InitCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	configDir, _ := cmd.Flags().GetString("config-dir")
	if configDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		configDir = filepath.Join(cwd, dotdir.DirName)
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Initialized graphstack directory: %s\n", dir)

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfger.GetTarget()); errors.Is(err, os.ErrNotExist) {
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote default config: %s\n", cfger.GetTarget())
	}

	cfg, _, err := stack.ResolveDir(cmd, dir, stack.StoreFlagKeys)
	if err != nil {
		return err
	}

	modelPath, err := dotdir.NewManager().ModelPath(dir, cfg.Model.Path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(modelPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "No model at %s; pass --model to create the store.\n", modelPath)
		return nil
	}

	debug, _ := cmd.Flags().GetBool("debug")
	return cliui.Step(out, "Writing model to store", func() error {
		s, err := stack.Open(cmd.Context(), stack.Options{
			ConfigDir: dir,
			Config:    cfg,
			Logger:    stack.NewLogger(debug),
			Migrate:   true,
		})
		if err != nil {
			return err
		}
		return s.Close()
	})
}
