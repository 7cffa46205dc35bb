package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig                 `json:"app" yaml:"app"`
	Backend    BackendConfig             `json:"backend" yaml:"backend"`
	Server     ServerConfig              `json:"server" yaml:"server"`
	Cache      CacheConfig               `json:"cache" yaml:"cache"`
	Onboarding OnboardingConfig          `json:"onboarding" yaml:"onboarding"`
	Policy     PolicyConfig              `json:"policy" yaml:"policy"`
	Gateways   map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory     MemoryConfig              `json:"memory" yaml:"memory"`
}

type AppConfig struct {
	Name       string `json:"name" yaml:"name"`
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`
	LLMLogPath string `json:"llm_log_path" yaml:"llm_log_path"`
}

// BackendConfig points at the onboarding and billing API.
type BackendConfig struct {
	URL   string `json:"url" yaml:"url"`
	Token string `json:"token" yaml:"token"`
}

// ServerConfig configures the reference progress server. Tokens maps bearer
// tokens to user ids.
type ServerConfig struct {
	Addr   string            `json:"addr" yaml:"addr"`
	Tokens map[string]string `json:"tokens" yaml:"tokens"`
}

type CacheConfig struct {
	CleanupInterval string `json:"cleanup_interval" yaml:"cleanup_interval"`
	Metrics         bool   `json:"metrics" yaml:"metrics"`
}

type OnboardingConfig struct {
	// StepsPath is an optional YAML step catalog replacing the built-in one.
	StepsPath string   `json:"steps_path" yaml:"steps_path"`
	Platforms []string `json:"platforms" yaml:"platforms"`
}

type PolicyConfig struct {
	DenyTargets       []string `json:"deny_targets" yaml:"deny_targets"`
	DenyActions       []string `json:"deny_actions" yaml:"deny_actions"`
	AllowPrivateHosts bool     `json:"allow_private_hosts" yaml:"allow_private_hosts"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

// Load reads a JSON or YAML (by extension) config file and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	if _, err := cfg.CleanupInterval(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig is Load for program start: any error is fatal.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "contentpilot"
	}
	if c.App.PromptsDir == "" {
		c.App.PromptsDir = "./prompts"
	}
	if c.App.LLMLogPath == "" {
		c.App.LLMLogPath = filepath.Join("logs", "llm.jsonl")
	}
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8080"
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.CleanupInterval == "" {
		c.Cache.CleanupInterval = "5m"
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "contentpilot.db"
	}
}

// CleanupInterval parses the cache sweep interval.
func (c *Config) CleanupInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Cache.CleanupInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid cache cleanup interval %q: %w", c.Cache.CleanupInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("cache cleanup interval must be positive, got %s", d)
	}
	return d, nil
}

// GetDefaultProvider returns the first enabled provider, in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns the named gateway config if it is enabled and
// has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
