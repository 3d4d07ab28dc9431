// Package bridgecmder wires the bridge root command and its subcommands.
package bridgecmder

import (
	"os"

	"github.com/spf13/cobra"

	configcmder "github.com/kgourjau/BridgeAI/cmd/bridge/config"
	initcmder "github.com/kgourjau/BridgeAI/cmd/bridge/init"
	prunecmder "github.com/kgourjau/BridgeAI/cmd/bridge/prune"
	servecmder "github.com/kgourjau/BridgeAI/cmd/bridge/serve"
	versioncmder "github.com/kgourjau/BridgeAI/cmd/version"
	"github.com/kgourjau/BridgeAI/pkg/cliui"
)

const bridgeLongDesc string = `Bridge is an OpenAI compatible relay in front of Groq.

It forwards chat completions to an OpenAI-compatible upstream and streams
the reply back as clean server-sent events under the model name your
clients expect.

Run the relay using:
  bridge init          Create a local .bridge/ directory with a config.toml
  bridge serve         Run the relay server
  bridge config list   Show the current configuration`

const bridgeShortDesc string = "Bridge - OpenAI compatible streaming relay"

func NewBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bridge",
		Short:         bridgeShortDesc,
		Long:          bridgeLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor || os.Getenv("NO_COLOR") != "" {
				cliui.DisableColor()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .bridge/ config directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output (also NO_COLOR)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(prunecmder.NewPruneCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
