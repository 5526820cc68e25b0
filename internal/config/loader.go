// Package config loads and verifies the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usher-cli/usher/internal/shellsafe"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, expands, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\nHint: check the path or pass --config", absPath)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a fully-defaulted config for the given identity, used
// when no config file exists.
func Default(agent, project string) *Config {
	cfg := &Config{Agent: agent, Project: project}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StateDir = filepath.Join(home, ".usher")
		} else {
			cfg.StateDir = ".usher"
		}
	}
	def := shellsafe.DefaultTools()
	if cfg.Tools.Claims == "" {
		cfg.Tools.Claims = def.Claims
	}
	if cfg.Tools.Workspace == "" {
		cfg.Tools.Workspace = def.Workspace
	}
	if cfg.Tools.Review == "" {
		cfg.Tools.Review = def.Review
	}
	if cfg.Tools.Tracker == "" {
		cfg.Tools.Tracker = def.Tracker
	}
	if cfg.Tools.Announce == "" {
		cfg.Tools.Announce = def.Announce
	}
	if cfg.Timeouts.Tool <= 0 {
		cfg.Timeouts.Tool = 30 * time.Second
	}
	if cfg.Timeouts.Step <= 0 {
		cfg.Timeouts.Step = 5 * time.Minute
	}
	if cfg.Lease.TTLSecs <= 0 {
		cfg.Lease.TTLSecs = 120
	}
	if cfg.Lease.AcquireBudget <= 0 {
		cfg.Lease.AcquireBudget = 3 * time.Minute
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:7411"
	}
}

func validate(cfg *Config) error {
	if cfg.Agent == "" {
		return fmt.Errorf("agent is required")
	}
	if !shellsafe.ValidIdentifier(cfg.Agent) {
		return fmt.Errorf("agent %q contains shell metacharacters", cfg.Agent)
	}
	if cfg.Project == "" {
		return fmt.Errorf("project is required")
	}
	if !shellsafe.ValidIdentifier(cfg.Project) {
		return fmt.Errorf("project %q contains shell metacharacters", cfg.Project)
	}
	for _, tool := range []string{cfg.Tools.Claims, cfg.Tools.Workspace, cfg.Tools.Review, cfg.Tools.Tracker, cfg.Tools.Announce} {
		if !shellsafe.ValidIdentifier(tool) {
			return fmt.Errorf("tool name %q contains shell metacharacters", tool)
		}
	}
	for _, r := range cfg.RequiredReviewers {
		if !shellsafe.ValidIdentifier(r) {
			return fmt.Errorf("required reviewer %q contains shell metacharacters", r)
		}
	}
	return nil
}

// ShellTools maps the config to the command builder's tool set.
func (c *Config) ShellTools() shellsafe.Tools {
	return shellsafe.Tools{
		Claims:    c.Tools.Claims,
		Workspace: c.Tools.Workspace,
		Review:    c.Tools.Review,
		Tracker:   c.Tools.Tracker,
		Announce:  c.Tools.Announce,
	}
}
