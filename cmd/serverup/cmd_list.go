package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// instanceEntry list命令输出的实例信息
type instanceEntry struct {
	Name         string     `json:"name" yaml:"name"`
	Method       string     `json:"method" yaml:"method"`
	Version      string     `json:"version" yaml:"version"`
	Nightly      bool       `json:"nightly" yaml:"nightly"`
	Port         int        `json:"port" yaml:"port"`
	StartConf    string     `json:"start_conf" yaml:"start_conf"`
	Running      bool       `json:"running" yaml:"running"`
	DataDir      string     `json:"data_dir" yaml:"data_dir"`
	LastUpgraded *time.Time `json:"last_upgraded,omitempty" yaml:"last_upgraded,omitempty"`
}

func newListCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			instances, err := a.discovery.List()
			if err != nil {
				return err
			}

			repo, err := a.history()
			if err != nil {
				return err
			}

			entries := make([]instanceEntry, 0, len(instances))
			for _, inst := range instances {
				entry := instanceEntry{
					Name:      inst.Name,
					Method:    inst.Meta.Method.String(),
					Version:   inst.Meta.Version.String(),
					Nightly:   inst.Meta.Nightly,
					Port:      inst.Meta.Port,
					StartConf: string(inst.Meta.StartConf),
					DataDir:   inst.DataDir,
				}
				if ctl, err := a.controls.For(inst); err == nil {
					entry.Running = ctl.IsRunning(ctx)
				}
				if repo != nil {
					rec, err := repo.LatestUpgraded(ctx, inst.Name)
					switch {
					case err == nil:
						entry.LastUpgraded = &rec.FinishedAt
					case !errors.Is(err, gorm.ErrRecordNotFound):
						return err
					}
				}
				entries = append(entries, entry)
			}

			return writeOutput(cmd.OutOrStdout(), format, entries, func(t *uitable.Table) {
				fillInstanceTable(t, entries)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table|json|yaml")
	return cmd
}

func fillInstanceTable(t *uitable.Table, entries []instanceEntry) {
	t.AddRow("NAME", "METHOD", "VERSION", "PORT", "START", "STATUS", "LAST UPGRADE")
	for _, e := range entries {
		version := e.Version
		if e.Nightly {
			version += " (nightly)"
		}
		status := "stopped"
		if e.Running {
			status = "running"
		}
		last := "-"
		if e.LastUpgraded != nil {
			last = relativeTime(*e.LastUpgraded)
		}
		t.AddRow(e.Name, e.Method, version, strconv.Itoa(e.Port), e.StartConf, status, last)
	}
}
