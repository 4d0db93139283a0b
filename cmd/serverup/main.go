package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/logger"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/version"
	"github.com/bingooyong/ops-scaffold-framework/serverup/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	_ = logger.Sync() // 程序退出时无法处理同步错误
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCodeOf(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "serverup",
		Short:   "Install and upgrade local database server instances",
		Version: version.GetFullVersion(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("serverup {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default "+defaultConfigHint()+")")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level: debug|info|warn|error")

	rootCmd.AddCommand(newInstallCmd(a))
	rootCmd.AddCommand(newUpgradeCmd(a))
	rootCmd.AddCommand(newInitCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	return rootCmd
}
