package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kgourjau/BridgeAI/pkg/cliui"
	"github.com/kgourjau/BridgeAI/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .bridge/ directory. A running "bridge serve" picks up
changes to the relay.* keys other than relay.listen without a restart.

Examples:
  bridge config set relay.bearer_token s3cret
  bridge config set relay.strip_fields x_groq,system_fingerprint
  bridge config set upstream.idle_timeout 90s`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(w io.Writer, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	printTarget(w, cfger.GetTarget())
	fmt.Fprintf(w, "  %s %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		renderValue(key, value, false),
	)
	if config.IsHotReloadKey(key) {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("A running relay applies this without a restart."))
	}
	return nil
}
