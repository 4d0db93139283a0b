package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/history"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/upgrade"
)

func newUpgradeCmd(a *app) *cobra.Command {
	var opts upgrade.Options

	cmd := &cobra.Command{
		Use:   "upgrade [name]",
		Short: "Upgrade installed servers and their instances",
		Long: "Without a name, upgrades every stable instance to the newest minor release of its major version,\n" +
			"or every nightly instance with --nightly. With a name, upgrades that instance, migrating its data\n" +
			"through a dump and restore when --to-nightly or --to-version is given.\n\n" +
			"A dump and restore keeps the old data directory as <datadir>.backup. The next dump and restore\n" +
			"of the same instance refuses to start while that directory exists, so remove or move it once\n" +
			"the upgraded instance has been checked.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Name = args[0]
			}
			if opts.Name == "" && (opts.ToNightly || opts.ToVersion != "") {
				return fmt.Errorf("--to-nightly and --to-version require an instance name")
			}

			u := upgrade.NewUpgrader(a.discovery, a.platform, a.controls, a.initializer, a.db, a.logger)
			u.SetOutput(cmd.OutOrStdout())
			u.SetConnection(a.cfg.Connection.User, a.cfg.Connection.Database)

			repo, err := a.history()
			if err != nil {
				a.logger.Warn("upgrade history is unavailable", zap.Error(err))
			} else if repo != nil {
				u.SetRecorder(history.NewRecorder(repo, a.logger))
			}
			return u.Upgrade(cmd.Context(), &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Nightly, "nightly", false, "upgrade all nightly instances")
	cmd.Flags().BoolVar(&opts.ToNightly, "to-nightly", false, "upgrade the named instance to nightly")
	cmd.Flags().StringVar(&opts.ToVersion, "to-version", "", "upgrade the named instance to the given version")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "upgrade even if the installed version is up to date")
	cmd.MarkFlagsMutuallyExclusive("to-nightly", "to-version")
	return cmd
}
