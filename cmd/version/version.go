// Package versioncmder provides the version command.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kgourjau/BridgeAI/pkg/cliui"
	"github.com/kgourjau/BridgeAI/pkg/utils"
)

type versionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Long:  "Print the version, commit and build time of this bridge binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *versionCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if c.short {
		fmt.Fprintln(out, utils.Version)
		return nil
	}

	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("version:"), utils.Version)
	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("commit: "), utils.Sha)
	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("built:  "), utils.Buildtime)
	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("agent:  "), cliui.DimStyle.Render(utils.UserAgent()))
	return nil
}
