package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Queue    QueueConfig    `yaml:"queue"`
	Assets   AssetConfig    `yaml:"assets"`
	Template TemplateConfig `yaml:"template"`
	Executor ExecutorConfig `yaml:"executor"`
	Storage  StorageConfig  `yaml:"storage"`
	Notifier NotifierConfig `yaml:"notifier"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Server   ServerConfig   `yaml:"server"`
	DataDir  string         `yaml:"data_dir,omitempty"`
}

// TemplateConfig locates the base application template.
type TemplateConfig struct {
	// Source is a local directory or a git URL (detected by scheme).
	Source string `yaml:"source"`
	Branch string `yaml:"branch,omitempty"`
	// WorkspaceRoot is where per-job workspaces are materialized.
	WorkspaceRoot string `yaml:"workspace_root,omitempty"`
}

// ExecutorConfig configures the external build executor subprocess.
type ExecutorConfig struct {
	Command string   `yaml:"command,omitempty"` // executable invoked against the workspace
	Args    []string `yaml:"args,omitempty"`    // fixed leading arguments
	// StageTimeout bounds the external-build stage; empty means unbounded.
	StageTimeout string `yaml:"stage_timeout,omitempty"`
}

// StorageConfig configures durable artifact storage.
type StorageConfig struct {
	BaseDir string `yaml:"base_dir,omitempty"` // local store root
	BaseURL string `yaml:"base_url,omitempty"` // prefix for returned URLs
	// StoreRetries is the small fixed retry count for artifact uploads
	// during packaging.
	StoreRetries int `yaml:"store_retries,omitempty"`
}

// NotifierConfig configures the NATS progress notifier.
type NotifierConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// JanitorConfig configures the scheduled workspace sweep.
type JanitorConfig struct {
	Enabled      bool   `yaml:"enabled,omitempty"`
	Interval     string `yaml:"interval,omitempty"`      // e.g. "10m"
	WorkspaceTTL string `yaml:"workspace_ttl,omitempty"` // orphan age before removal
}

// ServerConfig configures the read-only HTTP endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env if present; absence is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	c.Queue.applyDefaults()
	c.Assets.applyDefaults()
	if c.Template.WorkspaceRoot == "" {
		c.Template.WorkspaceRoot = os.TempDir()
	}
	if c.Executor.Command == "" {
		c.Executor.Command = "./gradlew"
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = "./storage/artifacts"
	}
	if c.Storage.StoreRetries <= 0 {
		c.Storage.StoreRetries = 2
	}
	if c.Notifier.SubjectPrefix == "" {
		c.Notifier.SubjectPrefix = "appforge.builds"
	}
	if c.Janitor.Interval == "" {
		c.Janitor.Interval = "10m"
	}
	if c.Janitor.WorkspaceTTL == "" {
		c.Janitor.WorkspaceTTL = "2h"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8085"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}
