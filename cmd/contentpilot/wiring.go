package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/contentpilot/internal/analytics"
	"github.com/rahul/contentpilot/internal/cache"
	"github.com/rahul/contentpilot/internal/gateway"
	"github.com/rahul/contentpilot/internal/governance"
	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/progress"
	"github.com/rahul/contentpilot/internal/research"
	"github.com/rahul/contentpilot/internal/store"
	"github.com/rahul/contentpilot/pkg/config"
)

// loadConfig loads the config file. Defaults are used when the file was not
// named on the command line and does not exist.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] %s not found, using defaults", o.configPath)
		return config.Default(), nil
	}
	return nil, err
}

func newLogger(cfg *config.Config, debug bool) *observability.Logger {
	var out io.Writer = io.Discard
	if debug {
		out = os.Stderr
	}
	return observability.NewLogger(out, cfg.App.LLMLogPath)
}

// openKV returns the store backing every cache. The sqlite database is shared
// with the progress server when both run on one machine.
func openKV(cfg *config.Config) (store.KV, *sql.DB, error) {
	if cfg.Memory.Type == "memory" {
		return store.NewMemoryKV(), nil, nil
	}
	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Memory.Path, err)
	}
	return store.NewSQLiteKV(db), db, nil
}

func cacheOptions(cfg *config.Config, reg prometheus.Registerer) []cache.Option {
	if !cfg.Cache.Metrics || reg == nil {
		return nil
	}
	return []cache.Option{cache.WithMetrics(reg)}
}

// managedCache is the type-independent part of a cache.Cache.
type managedCache interface {
	Name() string
	Stats() cache.Stats
	Invalidate(pattern string) int
	Cleanup() int
	Run(ctx context.Context, interval time.Duration)
}

// caches builds every cache the CLI knows about, keyed by namespace.
type caches struct {
	research  *cache.Cache[research.Report]
	analytics *analytics.Caches
	init      *cache.Cache[progress.InitResponse]
}

func newCaches(kv store.KV, opts ...cache.Option) (*caches, error) {
	reports, err := research.NewResearchCache(kv, opts...)
	if err != nil {
		return nil, err
	}
	ac, err := analytics.NewCaches(kv, opts...)
	if err != nil {
		return nil, err
	}
	snapshots, err := cache.New[progress.InitResponse](kv, "init", cache.SnapshotPolicy(), opts...)
	if err != nil {
		return nil, err
	}
	return &caches{research: reports, analytics: ac, init: snapshots}, nil
}

func (c *caches) all() []managedCache {
	return []managedCache{c.research, c.analytics.Dashboards, c.analytics.Health, c.analytics.Alerts, c.init}
}

func (c *caches) named(name string) ([]managedCache, error) {
	if name == "" || name == "all" {
		return c.all(), nil
	}
	for _, mc := range c.all() {
		if mc.Name() == name {
			return []managedCache{mc}, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q", name)
}

func newPolicy(cfg *config.Config) (*governance.DefaultPolicyEngine, error) {
	gov := governance.NewDefaultPolicyEngine()
	gov.AllowPrivateHosts = cfg.Policy.AllowPrivateHosts
	for _, action := range cfg.Policy.DenyActions {
		gov.DenyAction(action)
	}
	for _, pattern := range cfg.Policy.DenyTargets {
		if err := gov.DenyTargets(pattern); err != nil {
			return nil, fmt.Errorf("policy deny target %q: %w", pattern, err)
		}
	}
	return gov, nil
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, pCfg := cfg.GetDefaultProvider()
	if name == "" {
		return nil, errors.New("no enabled provider found in config")
	}
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", name)
	}
}

// newNotifier connects every enabled gateway. A gateway that fails to connect
// is skipped.
func newNotifier(cfg *config.Config, logger *observability.Logger) *gateway.Notifier {
	var targets []gateway.Target
	if gw, ok := cfg.GetGatewayConfig("telegram"); ok {
		if m, err := gateway.NewTelegramMessenger(gw.Token); err != nil {
			log.Printf("[gateway] telegram disabled: %v", err)
		} else {
			targets = append(targets, gateway.Target{Channel: "telegram", ChatID: gw.ChatID, Messenger: m})
		}
	}
	if gw, ok := cfg.GetGatewayConfig("discord"); ok {
		if m, err := gateway.NewDiscordMessenger(gw.Token); err != nil {
			log.Printf("[gateway] discord disabled: %v", err)
		} else {
			targets = append(targets, gateway.Target{Channel: "discord", ChatID: gw.ChatID, Messenger: m})
		}
	}
	return gateway.NewNotifier(logger, targets...)
}
