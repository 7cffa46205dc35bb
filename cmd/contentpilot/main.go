package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Printf("\033[91m[ FAIL ] %v\033[0m", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "contentpilot",
		Short:         "Marketing onboarding wizard and progress server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.json", "Config file (JSON or YAML)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Write structured events to stderr")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(onboardCmd(opts))
	cmd.AddCommand(cacheCmd(opts))
	cmd.AddCommand(analyticsCmd(opts))
	return cmd
}
