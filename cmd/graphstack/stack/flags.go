package stack

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/pkg/config"
)

// StoreFlagKeys are the registry keys of the flags AddStoreFlags registers.
var StoreFlagKeys = []string{
	config.FlagDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagModel,
	config.FlagSaveQueueSize,
	config.FlagAsyncQueueSize,
	config.FlagEventStream,
	config.FlagTopic,
}

// Flags holds the values of the shared store flags.
type Flags struct {
	driver, sqlite, postgres, model string
	saveQueue, asyncQueue           uint
	eventStream, topic              string
}

// AddStoreFlags registers the shared store flags on cmd.
func AddStoreFlags(cmd *cobra.Command, f *Flags) {
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagDriver, &f.driver)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagSQLite, &f.sqlite)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagPostgres, &f.postgres)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagModel, &f.model)
	config.AddUintFlag(cmd, config.StoreFlags, config.FlagSaveQueueSize, &f.saveQueue)
	config.AddUintFlag(cmd, config.StoreFlags, config.FlagAsyncQueueSize, &f.asyncQueue)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagEventStream, &f.eventStream)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagTopic, &f.topic)
}

// Resolve reads the config precedence chain for cmd: bound flags, then
// GRAPHSTACK_* environment variables, then config.toml, then defaults.
// It returns the config and the --config-dir value.
func Resolve(cmd *cobra.Command, keys []string) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	return ResolveDir(cmd, configDir, keys)
}

// ResolveDir is Resolve with an explicit configuration directory.
func ResolveDir(cmd *cobra.Command, configDir string, keys []string) (*config.Config, string, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", err
	}
	config.BindRegisteredFlags(v, cmd, config.StoreFlags, keys)

	return config.FromViper(v), configDir, nil
}
