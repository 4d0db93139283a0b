package main

import (
	"github.com/spf13/cobra"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/install"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

func newInstallCmd(a *app) *cobra.Command {
	var opts install.Options

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a database server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			installer := install.NewInstaller(a.platform, method.InstallMethod(a.cfg.Install.DefaultMethod), a.logger)
			installer.SetIO(cmd.InOrStdin(), cmd.OutOrStdout())
			return installer.Install(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.Method, "method", "", "installation method (default from config)")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "choose the installation method interactively")
	cmd.Flags().StringVar(&opts.Version, "version", "", "install a specific version")
	cmd.Flags().BoolVar(&opts.Nightly, "nightly", false, "install a nightly build")
	cmd.MarkFlagsMutuallyExclusive("version", "nightly")
	return cmd
}
