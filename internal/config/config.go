package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anthropic/codexlog/internal/analysis"
	"github.com/anthropic/codexlog/internal/sessionparser"
)

// Config holds all codexlog configuration.
type Config struct {
	DataDir   string         `yaml:"data_dir"`
	DBPath    string         `yaml:"db_path"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Policy    PolicyConfig   `yaml:"policy"`
	Analysis  AnalysisConfig `yaml:"analysis"`
	Scan      ScanConfig     `yaml:"scan"`
}

// PolicyConfig selects a parser preset and per-kind overrides.
type PolicyConfig struct {
	Preset string `yaml:"preset"`

	sessionparser.Policy `yaml:",inline"`
}

// AnalysisConfig configures the failure scan and flag extraction.
type AnalysisConfig struct {
	FailurePrefix string   `yaml:"failure_prefix"`
	FlagTool      string   `yaml:"flag_tool"`
	DefaultFlags  []string `yaml:"default_flags"`
}

// ScanConfig configures multi-file scans.
type ScanConfig struct {
	Workers        int      `yaml:"workers"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// Defaults used when the config file leaves a field unset.
const (
	DefaultFailurePrefix = analysis.DefaultFailurePrefix
	DefaultFlagTool      = "mcp__kernelmcp__vm_compile_c_and_upload"
	DefaultWorkers       = 4
)

// DefaultDataDir returns the default data directory (~/.codexlog).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".codexlog")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "codexlog.db"),
		LogLevel:  "info",
		LogFormat: "console",
		Policy:    PolicyConfig{Preset: sessionparser.PresetFull},
		Analysis: AnalysisConfig{
			FailurePrefix: DefaultFailurePrefix,
			FlagTool:      DefaultFlagTool,
			DefaultFlags:  []string{"-static"},
		},
		Scan: ScanConfig{
			Workers:        DefaultWorkers,
			IgnorePatterns: []string{},
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// any unset fields. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.DBPath = expandHome(cfg.DBPath)

	// Re-derive the database path if DataDir was overridden without it.
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "codexlog.db")
	}
	if cfg.Analysis.FailurePrefix == "" {
		cfg.Analysis.FailurePrefix = DefaultFailurePrefix
	}
	if cfg.Analysis.FlagTool == "" {
		cfg.Analysis.FlagTool = DefaultFlagTool
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := sessionparser.PolicyForPreset(c.Policy.Preset); err != nil {
		return err
	}
	if err := c.Policy.Policy.Validate(); err != nil {
		return err
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	return nil
}

// ParserPolicy returns the preset with the configured overrides applied.
func (c *Config) ParserPolicy() (sessionparser.Policy, error) {
	base, err := sessionparser.PolicyForPreset(c.Policy.Preset)
	if err != nil {
		return sessionparser.Policy{}, err
	}
	return base.Merge(c.Policy.Policy), nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
