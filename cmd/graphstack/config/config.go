// Package configcmder provides the config command for managing persistent
// graphstack configuration stored in the .graphstack/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/graphstack/pkg/cliui"
	"github.com/papercomputeco/graphstack/pkg/config"
)

const configLongDesc string = `Manage persistent graphstack configuration.

Configuration is stored as config.toml in the .graphstack/ directory and
provides default values for command flags. CLI flags and GRAPHSTACK_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  model.path,
  coordinator.save_queue_size, coordinator.async_queue_size,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  import.watch_dir

Use subcommands to get, set, or list configuration values:
  graphstack config set <key> <value>    Set a configuration value
  graphstack config get <key>            Get a configuration value
  graphstack config list                 List all configuration values

Examples:
  graphstack config set storage.driver postgres
  graphstack config set eventstream.brokers kafka1:9092,kafka2:9092
  graphstack config get model.path
  graphstack config list`

const configShortDesc string = "Manage persistent graphstack configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// openConfiger resolves the config file and prints which one is in use.
func openConfiger(cmd *cobra.Command, w io.Writer) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
	return cfger, nil
}
