package main

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/bingooyong/ops-scaffold-framework/serverup/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		instanceName string
		runID        string
		limit        int
		format       string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the upgrade history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.history()
			if err != nil {
				return err
			}
			if repo == nil {
				return fmt.Errorf("upgrade history is disabled, set history.enabled in the config file")
			}

			var records []*history.UpgradeRecord
			if runID != "" {
				records, err = repo.ListByRun(ctx, runID)
			} else {
				records, err = repo.List(ctx, instanceName, limit)
			}
			if err != nil {
				return fmt.Errorf("failed to read upgrade history: %w", err)
			}

			return writeOutput(cmd.OutOrStdout(), format, records, func(t *uitable.Table) {
				fillHistoryTable(t, records)
			})
		},
	}

	cmd.Flags().StringVar(&instanceName, "instance", "", "only show records for this instance")
	cmd.Flags().StringVar(&runID, "run", "", "show all records of one upgrade run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records, 0 for all")
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table|json|yaml")
	cmd.MarkFlagsMutuallyExclusive("instance", "run")
	return cmd
}

func fillHistoryTable(t *uitable.Table, records []*history.UpgradeRecord) {
	t.AddRow("STARTED", "INSTANCE", "PLAN", "METHOD", "SOURCE", "TARGET", "STATUS", "DURATION", "ERROR")
	for _, r := range records {
		t.AddRow(
			relativeTime(r.StartedAt),
			r.Instance,
			r.Plan,
			r.Method,
			dashIfEmpty(r.Source),
			dashIfEmpty(r.Target),
			r.Status,
			formatDuration(r.Duration()),
			dashIfEmpty(r.Error),
		)
	}
}
