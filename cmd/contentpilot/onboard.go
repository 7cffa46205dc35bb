package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/contentpilot/internal/agent"
	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/progress"
	"github.com/rahul/contentpilot/internal/research"
	"github.com/rahul/contentpilot/internal/steps"
	"github.com/rahul/contentpilot/internal/wizard"
	"github.com/rahul/contentpilot/pkg/config"
)

func onboardCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Walk through onboarding in the terminal",
		Long: "Walk through onboarding in the terminal. Progress is saved after every step,\n" +
			"so an interrupted run continues where it stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// The console blocks on stdin; a second interrupt kills the process.
			go func() {
				<-ctx.Done()
				stop()
			}()
			return runOnboard(ctx, cfg, newLogger(cfg, root.debug))
		},
	}
}

func loadCatalog(cfg *config.Config) ([]wizard.StepDescriptor, error) {
	if cfg.Onboarding.StepsPath == "" {
		return wizard.DefaultSteps(), nil
	}
	return wizard.LoadSteps(cfg.Onboarding.StepsPath)
}

func runOnboard(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	catalog, err := loadCatalog(cfg)
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

	gov, err := newPolicy(cfg)
	if err != nil {
		return err
	}
	model, err := newModel(cfg)
	if err != nil {
		return fmt.Errorf("persona generation unavailable: %w", err)
	}
	searcher, err := research.NewSearcher(10)
	if err != nil {
		return fmt.Errorf("competitor search unavailable: %w", err)
	}

	svc := progress.NewCachedService(
		progress.NewClient(cfg.Backend.URL, cfg.Backend.Token),
		cs.init,
		cfg.Backend.URL+" "+cfg.Backend.Token,
	)
	w, err := wizard.New(catalog, svc,
		wizard.WithNotifier(newNotifier(cfg, logger)),
		wizard.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	observability.PrintBanner(os.Stdout)
	if err := w.Hydrate(ctx); err != nil {
		return err
	}

	analyzer := research.NewWebsiteAnalyzer(gov)
	researcher := research.NewCompetitorResearcher(searcher, cs.research, gov)
	generator := agent.NewPersonaGenerator(model, agent.NewPromptManager(cfg.App.PromptsDir), logger, gov)
	driver := steps.NewDriver(w,
		steps.DefaultSteps(analyzer, researcher, generator, cfg.Onboarding.Platforms),
		steps.NewConsole(os.Stdin, os.Stdout),
		os.Stdout,
	)

	err = driver.Run(ctx)
	switch {
	case errors.Is(err, steps.ErrQuit), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		fmt.Println("\nProgress saved. Run onboard again to continue.")
		return nil
	case errors.Is(err, progress.ErrUnauthorized):
		return fmt.Errorf("backend rejected the token, check backend.token: %w", err)
	}
	return err
}
