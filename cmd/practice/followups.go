package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bharatemr/practice/internal/domain/followup"
	"github.com/bharatemr/practice/internal/platform/notify"
	"github.com/bharatemr/practice/pkg/pagination"
)

func followUpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "followups",
		Aliases: []string{"schedule"},
		Short:   "Browse the follow-up schedule and record outcomes",
	}
	cmd.AddCommand(followUpsListCmd(), followUpsSetStatusCmd(), followUpsExportCmd())
	return cmd
}

func printSchedule(out io.Writer, page *pagination.Page[followup.FollowUp], now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tPATIENT\tMOBILE\tNOTES\tSTATUS")
	for _, f := range page.Rows {
		status := string(f.Status)
		if f.Overdue(now) {
			status += " (overdue)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.ScheduledDate.Time().Format("02 Jan 2006"), f.PatientName, f.PatientMobile, truncate(f.Notes, 40), status)
	}
	w.Flush()
}

func followUpsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List follow-ups of the signed-in doctor or patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, followup.FilterRules)
			if err != nil {
				return err
			}
			schedule, err := followup.NewService(e.client, e.identity, e.logger).Schedule()
			if err != nil {
				return err
			}
			page, st, err := browse(cmd.Context(), schedule, values)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSchedule(out, page, time.Now())
			footer(out, page, followup.ScheduleSchema.String(st))
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func followUpsSetStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-status <followUpId> <COMPLETED|CANCELLED|MISSED>",
		Short: "Record the outcome of a scheduled follow-up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, followup.FilterRules)
			if err != nil {
				return err
			}
			svc := followup.NewService(e.client, e.identity, e.logger)
			schedule, err := svc.Schedule()
			if err != nil {
				return err
			}
			defer schedule.Close()
			if err := schedule.Restore(values); err != nil {
				return err
			}

			status := followup.Status(strings.ToUpper(args[1]))
			ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.RequestTimeout*2)
			defer cancel()
			if err := svc.SetStatus(ctx, schedule, args[0], status); err != nil {
				return err
			}
			e.sink.Notify("Follow-up marked "+strings.ToLower(string(status)), notify.Success)

			snap, err := schedule.Await(ctx)
			if err != nil {
				return err
			}
			if snap.Err != nil {
				return snap.Err
			}
			out := cmd.OutOrStdout()
			printSchedule(out, snap.Page, time.Now())
			footer(out, snap.Page, followup.ScheduleSchema.String(snap.Query))
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func followUpsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching follow-ups to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, followup.FilterRules)
			if err != nil {
				return err
			}
			data, err := followup.NewService(e.client, e.identity, e.logger).Export(cmd.Context(), followup.ScheduleSchema.Decode(values))
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if err := writeFile(out, data); err != nil {
				return err
			}
			e.sink.Notify("Exported "+out, notify.Success)
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().StringP("out", "o", "follow-ups.xlsx", "Output file")
	return cmd
}
