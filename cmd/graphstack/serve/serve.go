// Package servecmder provides the serve command, which runs the HTTP API and
// MCP endpoint over the store.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/api"
	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/config"
)

const serveLongDesc string = `Run the graphstack API server.

The server answers JSON requests for the model and stored objects, accepts
import documents and deletes, and serves an MCP endpoint at /mcp with the
describe_model, list_objects, get_object and import_objects tools.

Routes:
  GET    /v1/model
  GET    /v1/objects/{entity}?limit=N
  GET    /v1/objects/{entity}/{key}
  POST   /v1/import?dry_run=true
  DELETE /v1/objects/{entity}/{key}
  ALL    /mcp

Examples:
  graphstack serve
  graphstack serve --listen 127.0.0.1:9000 --read-only`

const serveShortDesc string = "Run the graphstack API server"

type ServeCommander struct {
	flags    stack.Flags
	listen   string
	readOnly bool
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagListen, &cmder.listen)
	config.AddBoolFlag(cmd, config.StoreFlags, config.FlagReadOnly, &cmder.readOnly)

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	keys := slices.Concat(stack.StoreFlagKeys, []string{config.FlagListen, config.FlagReadOnly})
	cfg, configDir, err := stack.Resolve(cmd, keys)
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

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		ReadOnly:   cfg.API.ReadOnly,
	}, s.Coordinator, log)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
