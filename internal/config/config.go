// Package config loads the gateway's TOML configuration file (§6.3, §6.4)
// via BurntSushi/toml, with environment-variable overrides for provider API
// keys and other secrets — never stored in the TOML file itself, matching
// the teacher's "secrets never in the config file, env-only" rule.
//
// Grounded on the teacher's internal/config/config.go Load(path) + tolerant
// field-shape idiom, with the wire format swapped from the teacher's JSON to
// TOML (the one deliberate format change this spec requires) and the field
// set narrowed to the tree §6.4 names: gateway{}, auth{}, providers, channels,
// memory{}, scheduler{}, heartbeat{}, plus routing{}, summarizer{} and
// sandbox{}.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type GatewayConfig struct {
	Name     string `toml:"name"`
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
}

type AuthConfig struct {
	Enabled     bool `toml:"enabled"`
	DenyMessage string `toml:"deny_message"`
}

type ProviderConfig struct {
	Kind       string `toml:"kind"` // "openai", "anthropic", "cli"
	APIKey     string `toml:"api_key"`
	APIKeyEnv  string `toml:"api_key_env"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Command    string `toml:"command"` // cli provider only
	Args       []string `toml:"args"`
	TimeoutSec int    `toml:"timeout_sec"`
}

func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}

type RoutingConfig struct {
	FastProvider    string `toml:"fast_provider"`
	ComplexProvider string `toml:"complex_provider"`
}

type ChannelConfig struct {
	Enabled   bool     `toml:"enabled"`
	Token     string   `toml:"token"`
	TokenEnv  string   `toml:"token_env"`
	Allowlist []string `toml:"allowlist"`
}

func (c ChannelConfig) ResolveToken() string {
	if c.TokenEnv != "" {
		if v := os.Getenv(c.TokenEnv); v != "" {
			return v
		}
	}
	return c.Token
}

type MemoryConfig struct {
	Backend            string `toml:"backend"` // "sqlite"
	DBPath             string `toml:"db_path"`
	MaxContextMessages int    `toml:"max_context_messages"`
	IdleTimeoutMinutes int    `toml:"idle_timeout_minutes"`
}

type SchedulerConfig struct {
	Enabled         bool `toml:"enabled"`
	PollIntervalSecs int  `toml:"poll_interval_secs"`
}

type HeartbeatConfig struct {
	Enabled         bool   `toml:"enabled"`
	IntervalMinutes int    `toml:"interval_minutes"`
	ActiveStart     string `toml:"active_start"` // "HH:MM"
	ActiveEnd       string `toml:"active_end"`
	Channel         string `toml:"channel"`
	ReplyTarget     string `toml:"reply_target"`
}

type SummarizerConfig struct {
	Enabled             bool `toml:"enabled"`
	IntervalMinutes     int  `toml:"interval_minutes"`
	IdleThresholdMinutes int  `toml:"idle_threshold_minutes"`
}

type SandboxConfig struct {
	Workspace string `toml:"workspace"`
}

type Config struct {
	Gateway     GatewayConfig             `toml:"gateway"`
	Auth        AuthConfig                `toml:"auth"`
	Providers   map[string]ProviderConfig `toml:"providers"`
	Routing     RoutingConfig             `toml:"routing"`
	Channels    map[string]ChannelConfig  `toml:"channels"`
	Memory      MemoryConfig              `toml:"memory"`
	Scheduler   SchedulerConfig           `toml:"scheduler"`
	Heartbeat   HeartbeatConfig           `toml:"heartbeat"`
	Summarizer  SummarizerConfig          `toml:"summarizer"`
	Sandbox     SandboxConfig             `toml:"sandbox"`

	path string
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{Name: "omegagate", DataDir: "~/.omegagate", LogLevel: "info"},
		Auth:    AuthConfig{Enabled: true, DenyMessage: "You are not authorized to use this bot."},
		Memory: MemoryConfig{
			Backend:            "sqlite",
			MaxContextMessages: 50,
			IdleTimeoutMinutes: 120,
		},
		Scheduler:  SchedulerConfig{Enabled: true, PollIntervalSecs: 60},
		Heartbeat:  HeartbeatConfig{Enabled: false, IntervalMinutes: 30},
		Summarizer: SummarizerConfig{Enabled: true, IntervalMinutes: 15, IdleThresholdMinutes: 120},
	}
}

// Load reads and parses the TOML config at path, applying defaults for
// unset fields. A missing file is a fatal config error (§7).
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg.path = path

	cfg.Gateway.DataDir = ExpandHome(cfg.Gateway.DataDir)
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(cfg.Gateway.DataDir, "data", "memory.db")
	}
	if cfg.Sandbox.Workspace == "" {
		cfg.Sandbox.Workspace = filepath.Join(cfg.Gateway.DataDir, "workspace")
	}
	if cfg.Memory.MaxContextMessages <= 0 {
		cfg.Memory.MaxContextMessages = 50
	}
	if cfg.Memory.IdleTimeoutMinutes <= 0 {
		cfg.Memory.IdleTimeoutMinutes = 120
	}
	if cfg.Scheduler.PollIntervalSecs <= 0 {
		cfg.Scheduler.PollIntervalSecs = 60
	}
	return cfg, nil
}

// Path returns the path this config was loaded from.
func (c *Config) Path() string { return c.path }

// HasAnyProvider reports whether at least one provider has a resolvable
// API key (or is a no-key subprocess provider).
func (c *Config) HasAnyProvider() bool {
	for _, p := range c.Providers {
		if p.Kind == "cli" || p.ResolveAPIKey() != "" {
			return true
		}
	}
	return false
}
