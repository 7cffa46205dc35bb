package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/contentpilot/internal/observability"
)

func cacheCmd(root *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and purge local caches",
	}
	cmd.PersistentFlags().StringVar(&name, "name", "all", "Cache namespace (research, analytics, health, alerts, init or all)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCaches(cmd, root, name, func(list []managedCache, logger *observability.Logger) error {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CACHE\tENTRIES\tEXPIRED\tCORRUPT")
				for _, c := range list {
					// Sweeping first makes the entry count exact.
					c.Cleanup()
					s := c.Stats()
					logger.LogCache(c.Name(), s)
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Name(), s.Entries, s.Expired, s.Corrupt)
				}
				return tw.Flush()
			})
		},
	}

	purge := &cobra.Command{
		Use:   "purge [pattern]",
		Short: "Remove cached entries, all of them or those whose key contains pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return withCaches(cmd, root, name, func(list []managedCache, logger *observability.Logger) error {
				total := 0
				for _, c := range list {
					n := c.Invalidate(pattern)
					logger.LogCache(c.Name(), map[string]int{"purged": n})
					total += n
				}
				fmt.Printf("Removed %d entries.\n", total)
				return nil
			})
		},
	}

	cmd.AddCommand(stats, purge)
	return cmd
}

func withCaches(cmd *cobra.Command, root *rootOptions, name string, fn func([]managedCache, *observability.Logger) error) error {
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
	list, err := cs.named(name)
	if err != nil {
		return err
	}
	return fn(list, newLogger(cfg, root.debug))
}
