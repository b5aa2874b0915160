// Package watchcmder provides the watch command, which imports documents
// dropped into a directory until interrupted.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/cmd/graphstack/stack"
	"github.com/papercomputeco/graphstack/pkg/config"
	"github.com/papercomputeco/graphstack/pkg/importer"
	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/watchstate"
)

const watchLongDesc string = `Watch a directory and import JSON documents as they appear.

Documents already in the directory are imported first. A file is imported
again whenever it is rewritten. The directory defaults to import.watch_dir.
Progress is recorded in the .graphstack/ directory and shown by
"graphstack status"; log records are appended to .graphstack/watch.log. Only one watcher may run per directory.

Examples:
  graphstack watch ./inbox
  graphstack watch --eventstream kafka --topic graphstack.saves ./inbox`

const watchShortDesc string = "Import documents as they appear in a directory"

type WatchCommander struct {
	flags stack.Flags
	dir   string
}

func NewWatchCmd() *cobra.Command {
	cmder := &WatchCommander{}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("dir", args[0]); err != nil {
					return err
				}
			}
			return cmder.run(cmd)
		},
	}

	stack.AddStoreFlags(cmd, &cmder.flags)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagWatchDir, &cmder.dir)

	return cmd
}

func (c *WatchCommander) run(cmd *cobra.Command) error {
	cfg, configDir, err := stack.Resolve(cmd, slices.Concat(stack.StoreFlagKeys, []string{config.FlagWatchDir}))
	if err != nil {
		return err
	}
	dir := cfg.Import.WatchDir
	if dir == "" {
		return errors.New("no directory to watch: pass one or set import.watch_dir")
	}

	debug, _ := cmd.Flags().GetBool("debug")

	states, err := watchstate.NewManager(configDir)
	if err != nil {
		return err
	}
	lock, err := states.Lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	logFile, err := states.OpenLog()
	if err != nil {
		return err
	}
	defer logFile.Close()

	log := logger.Multi(
		stack.NewLogger(debug),
		logger.New(
			logger.WithJSON(true),
			logger.WithDebug(debug),
			logger.WithWriter(logFile),
			logger.WithAttrs("pid", os.Getpid()),
		),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := stack.Open(ctx, stack.Options{
		ConfigDir: configDir,
		Config:    cfg,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	state := &watchstate.State{
		PID:       os.Getpid(),
		Dir:       dir,
		StartedAt: time.Now(),
	}
	if err := states.SaveState(state); err != nil {
		return err
	}
	defer states.ClearState()

	im := importer.New(s.Coordinator, importer.Options{Logger: log})
	err = im.Watch(ctx, dir, recorder(states, state, log))
	if errors.Is(err, context.Canceled) {
		log.Info("watch stopped", "dir", dir)
		return nil
	}
	return err
}

// recorder folds every import outcome into state and persists it.
func recorder(states *watchstate.Manager, state *watchstate.State, log *slog.Logger) importer.WatchFunc {
	return func(path string, result *importer.Result, err error) {
		if err != nil {
			state.LastError = fmt.Sprintf("%s: %v", path, err)
		} else {
			state.Files += result.Files
			state.Inserted += result.Inserted
			state.Updated += result.Updated
			state.LastImport = time.Now()
			state.LastError = ""
		}
		if err := states.SaveState(state); err != nil {
			log.Warn("recording watch state", "error", err)
		}
	}
}
