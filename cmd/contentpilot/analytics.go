package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/contentpilot/internal/analytics"
)

func analyticsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show usage, system health and alerts from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			kv, db, err := openKV(cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			cs, err := newCaches(kv)
			if err != nil {
				return err
			}
			client := analytics.NewClient(cfg.Backend.URL, cfg.Backend.Token, analytics.WithCaches(cs.analytics))
			ctx := cmd.Context()

			dash, err := client.Dashboard(ctx)
			if err != nil {
				return err
			}
			health, err := client.SystemHealth(ctx)
			if err != nil {
				return err
			}
			alerts, err := client.UsageAlerts(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			s := dash.Summary
			fmt.Fprintf(tw, "Period\t%s\n", dash.Period)
			fmt.Fprintf(tw, "Calls\t%d\n", s.TotalCalls)
			fmt.Fprintf(tw, "Tokens\t%d\n", s.TotalTokens)
			fmt.Fprintf(tw, "Cost\t$%.2f of $%.2f (%.1f%%)\n", s.TotalCost, s.MonthlyBudget, s.BudgetUsedPercent)
			for _, p := range dash.Providers {
				fmt.Fprintf(tw, "  %s\t%d calls, $%.2f\n", p.Provider, p.Calls, p.Cost)
			}

			fmt.Fprintf(tw, "Health\t%s\n", health.Status)
			names := make([]string, 0, len(health.Services))
			for name := range health.Services {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(tw, "  %s\t%s\n", name, health.Services[name])
			}

			fmt.Fprintf(tw, "Alerts\t%d\n", len(alerts))
			for _, a := range alerts {
				mark := " "
				if !a.Read {
					mark = "*"
				}
				fmt.Fprintf(tw, " %s[%s]\t%s\n", mark, a.Severity, a.Message)
			}
			return tw.Flush()
		},
	}
}
