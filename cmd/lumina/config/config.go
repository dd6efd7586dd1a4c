// Package configcmder provides the config command for managing persistent
// lumina configuration stored in the .lumina/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/pkg/config"
)

const configLongDesc string = `Manage persistent lumina configuration.

Configuration is stored as config.toml in the .lumina/ directory and provides
default values for command flags. CLI flags and LUMINA_* environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target,
  chat.model, chat.title_model, chat.temperature, chat.max_tokens,
  chat.top_p, chat.timeout,
  session.last_agent_id, session.last_chat_id,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  lumina config set <key> <value>    Set a configuration value
  lumina config get <key>            Get a configuration value
  lumina config list                 List all configuration values

Examples:
  lumina config set chat.model mlx-community/Mistral-7B-Instruct-v0.3-4bit
  lumina config set chat.temperature 0.4
  lumina config get client.api_target
  lumina config list`

const configShortDesc string = "Manage persistent lumina configuration"

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

func validKeysCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
