// Package prunecmder provides the prune command that deletes old transcript
// entries once, outside of the serve scheduler.
package prunecmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kgourjau/BridgeAI/cmd/bridge/transcriptdb"
	"github.com/kgourjau/BridgeAI/pkg/cliui"
	"github.com/kgourjau/BridgeAI/pkg/config"
	"github.com/kgourjau/BridgeAI/pkg/logger"
	"github.com/kgourjau/BridgeAI/pkg/storage/retention"
)

type pruneCommander struct {
	days        int
	sqlitePath  string
	postgresDSN string
	debug       bool

	viper *viper.Viper
}

const pruneLongDesc string = `Delete transcript entries older than the retention window.

The window defaults to retention.days from config.toml; --days overrides it.
"bridge serve" already prunes on retention.schedule, this command is for
one-off cleanups and for stores not attached to a running relay.

Examples:
  bridge prune
  bridge prune --days 7 --sqlite ./bridge.db`

const pruneShortDesc string = "Delete old transcript entries"

func NewPruneCmd() *cobra.Command {
	cmder := &pruneCommander{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: pruneShortDesc,
		Long:  pruneLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{
				config.FlagSQLite,
				config.FlagPostgres,
			})
			if f := cmd.Flags().Lookup("days"); f != nil {
				_ = v.BindPFlag("retention.days", f)
			}

			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&cmder.days, "days", 0, "Keep this many days of entries (default: retention.days)")
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)

	return cmd
}

func (c *pruneCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	days := c.viper.GetInt("retention.days")

	driver, err := transcriptdb.Open(ctx, transcriptdb.Options{
		PostgresDSN: c.viper.GetString("storage.postgres_dsn"),
		SQLitePath:  c.viper.GetString("storage.sqlite_path"),
	}, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	pruner, err := retention.NewPruner(driver, days, log)
	if err != nil {
		return fmt.Errorf("retention.days = %d: %w", days, err)
	}

	var deleted int64
	msg := fmt.Sprintf("Pruning entries before %s", pruner.Cutoff().Format("2006-01-02 15:04"))
	if err := cliui.Step(w, msg, func() error {
		var pruneErr error
		deleted, pruneErr = pruner.Prune(ctx)
		return pruneErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Deleted %s entries\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprint(deleted)),
	)
	return nil
}
