package config

import "time"

// Config is the engine's complete configuration. The agent identity is
// carried here and passed explicitly through call chains; nothing deeper
// than the loader reads the ambient environment.
type Config struct {
	// Agent is this worker's identity at the claims store.
	Agent string `yaml:"agent"`
	// Project scopes every claim URI.
	Project string `yaml:"project"`

	LogLevel string `yaml:"log_level"`
	// StateDir holds the execution journal and the per-agent run lock.
	StateDir string `yaml:"state_dir"`

	// RequiredReviewers gate the finish and merge paths.
	RequiredReviewers []string `yaml:"required_reviewers"`

	Tools    ToolsConfig    `yaml:"tools"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Lease    LeaseConfig    `yaml:"lease"`
	API      APIConfig      `yaml:"api,omitempty"`
}

// ToolsConfig names the external binaries.
type ToolsConfig struct {
	Claims    string `yaml:"claims"`
	Workspace string `yaml:"workspace"`
	Review    string `yaml:"review"`
	Tracker   string `yaml:"tracker"`
	Announce  string `yaml:"announce"`
}

// TimeoutsConfig bounds subprocess calls.
type TimeoutsConfig struct {
	// Tool bounds one adapter call (list, show, stake, ...).
	Tool time.Duration `yaml:"tool"`
	// Step bounds one executed guidance step.
	Step time.Duration `yaml:"step"`
}

// LeaseConfig tunes the merge mutex.
type LeaseConfig struct {
	// TTLSecs is the lease lifetime the stake asks for.
	TTLSecs int `yaml:"ttl_secs"`
	// AcquireBudget is the total time Acquire may spend retrying.
	AcquireBudget time.Duration `yaml:"acquire_budget"`
}

// APIConfig configures the optional read-only status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}
