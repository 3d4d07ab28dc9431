// Package configcmder provides the config command for managing persistent
// bridge configuration stored in the .bridge/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent bridge configuration.

Configuration is stored as config.toml in the .bridge/ directory and provides
default values for "bridge serve". CLI flags and BRIDGE_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.bearer_token, relay.advertised_model,
  relay.strip_fields, relay.passthrough_model, relay.keepalive_interval,
  upstream.base_url, upstream.api_key, upstream.default_model,
  upstream.idle_timeout, upstream.header_timeout, upstream.max_event_size,
  storage.sqlite_path, storage.postgres_dsn,
  retention.days, retention.schedule,
  events.kafka_brokers, events.kafka_topic,
  models.cache_ttl

Use subcommands to get, set, or list configuration values:
  bridge config set <key> <value>    Set a configuration value
  bridge config get <key>            Get a configuration value
  bridge config list                 List all configuration values

Examples:
  bridge config set relay.advertised_model gpt-4o-mini
  bridge config set upstream.api_key gsk_...
  bridge config get relay.strip_fields
  bridge config list`

const configShortDesc string = "Manage persistent bridge configuration"

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
