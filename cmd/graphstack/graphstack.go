// Package graphstackcmder
package graphstackcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/graphstack/cmd/graphstack/config"
	getcmder "github.com/papercomputeco/graphstack/cmd/graphstack/get"
	importcmder "github.com/papercomputeco/graphstack/cmd/graphstack/importcmd"
	initcmder "github.com/papercomputeco/graphstack/cmd/graphstack/initcmd"
	servecmder "github.com/papercomputeco/graphstack/cmd/graphstack/serve"
	statuscmder "github.com/papercomputeco/graphstack/cmd/graphstack/status"
	watchcmder "github.com/papercomputeco/graphstack/cmd/graphstack/watch"
	versioncmder "github.com/papercomputeco/graphstack/cmd/version"
)

const graphstackLongDesc string = `Graphstack keeps an object graph in a durable store behind a tree of
editing contexts.

Get started using:
  graphstack init --model model.toml   Create the store and write the model
  graphstack import data.json          Import a document
  graphstack watch ./inbox             Import documents as they appear
  graphstack get Post                  List stored objects
  graphstack serve                     Serve the HTTP API and MCP endpoint
  graphstack status                    Show the model and object counts`

const graphstackShortDesc string = "Graphstack - layered object persistence"

func NewGraphstackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "graphstack",
		Short:        graphstackShortDesc,
		Long:         graphstackLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .graphstack/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(getcmder.NewGetCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
