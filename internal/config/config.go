// Package config loads fiveworlds.yaml.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/scaler"
	"github.com/signalnine/fiveworlds/internal/telemetry"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

const DefaultPath = "fiveworlds.yaml"

type Config struct {
	Repo         string                     `yaml:"repo"`
	BaseRef      string                     `yaml:"base_ref"`
	SandboxRoot  string                     `yaml:"sandbox_root"`
	Mode         string                     `yaml:"mode"`
	WorldTimeout time.Duration              `yaml:"world_timeout"`
	LogLevel     string                     `yaml:"log_level"`
	LogFormat    string                     `yaml:"log_format"`
	Worlds       map[string]world.Override  `yaml:"worlds"`
	Breaker      breaker.Settings           `yaml:"breaker"`
	Scaler       scaler.Settings            `yaml:"scaler"`
	Agent        Agent                      `yaml:"agent"`
	Validation   Validation                 `yaml:"validation"`
	Scoring      validation.WeightOverrides `yaml:"scoring"`
	Pricing      Pricing                    `yaml:"pricing"`
	Secrets      Secrets                    `yaml:"secrets"`
	Results      Results                    `yaml:"results"`
	Telemetry    telemetry.Settings         `yaml:"telemetry"`
}

type Agent struct {
	Image       string            `yaml:"image"`
	Adapter     string            `yaml:"adapter"`
	Env         map[string]string `yaml:"env"`
	CPULimit    float64           `yaml:"cpu_limit"`
	MemoryLimit int64             `yaml:"memory_limit"`
}

type Validation struct {
	Image          string `yaml:"image"`
	InstallCmd     string `yaml:"install_cmd"`
	BuildCmd       string `yaml:"build_cmd"`
	TestCmd        string `yaml:"test_cmd"`
	LintCmd        string `yaml:"lint_cmd"`
	BaselineIssues int    `yaml:"baseline_issues"`
}

func (v Validation) ReviewOpts() validation.ReviewOpts {
	return validation.ReviewOpts{
		InstallCmd:     v.InstallCmd,
		BuildCmd:       v.BuildCmd,
		TestCmd:        v.TestCmd,
		LintCmd:        v.LintCmd,
		BaselineIssues: v.BaselineIssues,
	}
}

type Pricing struct {
	Path string `yaml:"path"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	if err := validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when path is the
// default location and does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == DefaultPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Default(), nil
		}
	}
	return Load(path)
}

// Overrides returns the per-world overrides keyed by world.
func (c *Config) Overrides() map[world.ID]world.Override {
	out := make(map[world.ID]world.Override, len(c.Worlds))
	for name, o := range c.Worlds {
		// validate has already rejected unknown names.
		id, _ := world.Parse(name)
		out[id] = o
	}
	return out
}

// Weights is the scoring policy: DefaultWeights with the configured fields
// replaced.
func (c *Config) Weights() validation.Weights {
	return c.Scoring.Apply(validation.DefaultWeights)
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func validate(cfg *Config) error {
	if cfg.Repo == "" {
		cfg.Repo = "."
	}
	if cfg.BaseRef == "" {
		cfg.BaseRef = "HEAD"
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = ".fiveworlds/sandboxes"
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = ".fiveworlds/results"
	}
	switch strings.ToLower(cfg.Mode) {
	case "":
		cfg.Mode = "parallel"
	case "parallel", "sequential":
		cfg.Mode = strings.ToLower(cfg.Mode)
	default:
		return fmt.Errorf("mode must be parallel or sequential, got %q", cfg.Mode)
	}
	if cfg.WorldTimeout < 0 {
		return fmt.Errorf("world_timeout must not be negative")
	}
	if cfg.WorldTimeout == 0 {
		cfg.WorldTimeout = 20 * time.Minute
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}
	for name, o := range cfg.Worlds {
		if _, err := world.Parse(name); err != nil {
			return fmt.Errorf("worlds: %w", err)
		}
		if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
			return fmt.Errorf("worlds.%s: temperature %v out of range [0, 2]", name, *o.Temperature)
		}
	}
	if cfg.Breaker.FailureThreshold < 0 || cfg.Breaker.Cooldown < 0 {
		return fmt.Errorf("breaker settings must not be negative")
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = breaker.DefaultSettings.FailureThreshold
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = breaker.DefaultSettings.Cooldown
	}
	if l := cfg.Scaler.DefaultLimit; l < 0 || l > world.Count {
		return fmt.Errorf("scaler.default_limit must be between 1 and %d", world.Count)
	}
	if cfg.Scaler.Interval < 0 {
		return fmt.Errorf("scaler.interval must not be negative")
	}
	if err := cfg.Weights().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if cfg.Agent.Image == "" {
		cfg.Agent.Image = "fiveworlds/adapter:latest"
	}
	if cfg.Agent.CPULimit < 0 || cfg.Agent.MemoryLimit < 0 {
		return fmt.Errorf("agent limits must not be negative")
	}
	return nil
}

// resolvePaths makes relative paths in the file relative to the file.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Repo, &c.SandboxRoot, &c.Results.Dir, &c.Agent.Adapter, &c.Pricing.Path, &c.Secrets.EnvFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}
