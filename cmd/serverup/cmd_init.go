package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/bootstrap"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/instance"
	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/method"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		methodName   string
		versionFlag  string
		nightly      bool
		port         int
		startConf    string
		inhibitStart bool
		overwrite    bool
	)

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Initialize a new database instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]
			if methodName == "" {
				methodName = a.cfg.Install.DefaultMethod
			}
			methodID := method.InstallMethod(methodName)

			avail, err := a.platform.AvailableMethods(ctx)
			if err != nil {
				return err
			}
			if !avail.IsSupported(methodID) {
				return fmt.Errorf("%w: %s\n%s", method.ErrUnsupported, avail.Title(methodID), avail.FormatError())
			}
			m, err := a.platform.MakeMethod(methodID, avail)
			if err != nil {
				return err
			}

			major, err := bootstrap.ResolveVersion(ctx, m, method.NewQuery(nightly, versionFlag))
			if err != nil {
				return err
			}

			if err := a.initializer.Init(ctx, &bootstrap.Options{
				Name:            name,
				Nightly:         nightly,
				Version:         major,
				Method:          methodID,
				Port:            port,
				StartConf:       instance.StartConf(startConf),
				InhibitStart:    inhibitStart,
				Overwrite:       overwrite,
				DefaultUser:     a.cfg.Connection.User,
				DefaultDatabase: a.cfg.Connection.Database,
			}); err != nil {
				return err
			}

			inst, err := a.discovery.Get(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Instance %s (version %s) initialized on port %d\n",
				inst.Name, inst.Meta.Version, inst.Meta.Port)
			return nil
		},
	}

	cmd.Flags().StringVar(&methodName, "method", "", "installation method providing the server (default from config)")
	cmd.Flags().StringVar(&versionFlag, "version", "", "major or exact version of an installed server")
	cmd.Flags().BoolVar(&nightly, "nightly", false, "use the installed nightly server")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: first free port from server.port_base)")
	cmd.Flags().StringVar(&startConf, "start-conf", string(instance.StartAuto), "start configuration: auto|manual")
	cmd.Flags().BoolVar(&inhibitStart, "inhibit-start", false, "do not start the instance after initialization")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing instance with the same name")
	cmd.MarkFlagsMutuallyExclusive("version", "nightly")
	return cmd
}
