// Package config handles configuration loading and management for Conclave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/conclave-labs/conclave/internal/breaker"
	"github.com/conclave-labs/conclave/pkg/models"
)

// Config holds all configuration for Conclave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Panel     PanelConfig     `mapstructure:"panel"`
	Breakers  BreakersConfig  `mapstructure:"breakers"`
	Store     StoreConfig     `mapstructure:"store"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the primary completion model.
	Model string `mapstructure:"model"`
	// FallbackModel serves when the primary provider's breaker is open.
	// Empty disables the fallback provider.
	FallbackModel string `mapstructure:"fallback_model"`
	// DistillModel is the cheap model for summaries and distillation.
	DistillModel string `mapstructure:"distill_model"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// ScheduleConfig holds schedule execution settings.
type ScheduleConfig struct {
	// Mode is "batch" or "speculative".
	Mode string `mapstructure:"mode"`
	// EarlyStartRounds is the dependency round threshold for speculative
	// dependents to begin.
	EarlyStartRounds int `mapstructure:"early_start_rounds"`
	// MaxWait bounds a speculative dependent's wait on its dependencies.
	MaxWait time.Duration `mapstructure:"max_wait"`
	// FailOnWaitTimeout makes a wait timeout fail the item instead of
	// continuing with reduced context.
	FailOnWaitTimeout bool `mapstructure:"fail_on_wait_timeout"`
}

// PanelConfig holds deliberation panel settings.
type PanelConfig struct {
	// Size is the number of panel members.
	Size int `mapstructure:"size"`
	// Personas overrides the default persona list.
	Personas []string `mapstructure:"personas"`
	// ConvergenceThreshold stops deliberation early once positions align.
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
}

// BreakersConfig holds circuit breaker tuning: shared defaults plus
// per-service overrides keyed by service name.
type BreakersConfig struct {
	Defaults breaker.Config            `mapstructure:"defaults"`
	Services map[string]breaker.Config `mapstructure:"services"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path overrides the database location. Empty uses the global path.
	Path string `mapstructure:"path"`
	// CacheEnabled toggles the recommendation cache.
	CacheEnabled bool `mapstructure:"cache_enabled"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// LogPath enables file-backed debug tracing when set.
	LogPath string `mapstructure:"log_path"`
}

// ScheduleModel converts the schedule section to the model-level config,
// validating the mode.
func (c *Config) ScheduleModel() (models.ScheduleConfig, error) {
	cfg := models.DefaultScheduleConfig()
	switch c.Schedule.Mode {
	case "", string(models.ModeBatch):
		cfg.Mode = models.ModeBatch
	case string(models.ModeSpeculative):
		cfg.Mode = models.ModeSpeculative
	default:
		return cfg, fmt.Errorf("unknown schedule mode %q", c.Schedule.Mode)
	}
	if c.Schedule.EarlyStartRounds > 0 {
		cfg.EarlyStartRounds = c.Schedule.EarlyStartRounds
	}
	if c.Schedule.MaxWait > 0 {
		cfg.MaxWait = c.Schedule.MaxWait
	}
	cfg.FailOnWaitTimeout = c.Schedule.FailOnWaitTimeout
	return cfg, nil
}

// BreakerRegistry builds a breaker registry from the configured defaults
// and per-service overrides, with the per-resource classifier adapters
// installed.
func (c *Config) BreakerRegistry() *breaker.Registry {
	defaults := c.Breakers.Defaults
	if defaults.FailureThreshold == 0 {
		defaults = breaker.DefaultConfig()
	}

	reg := breaker.NewRegistry(defaults)
	for service, cfg := range c.Breakers.Services {
		reg.Configure(service, cfg)
	}

	reg.SetClassifier(breaker.ServiceLLM, breaker.LLMClassifier())
	reg.SetClassifier(breaker.ServiceLLMFallback, breaker.LLMClassifier())
	reg.SetClassifier(breaker.ServiceDatastore, breaker.DatastoreClassifier())
	reg.SetClassifier(breaker.ServiceCache, breaker.CacheClassifier())
	return reg
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.conclave.yaml in current directory or parent)
// 3. User config (~/.config/conclave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.fallback_model", cfg.Anthropic.FallbackModel)
	v.Set("anthropic.distill_model", cfg.Anthropic.DistillModel)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("schedule.mode", cfg.Schedule.Mode)
	v.Set("schedule.early_start_rounds", cfg.Schedule.EarlyStartRounds)
	v.Set("schedule.max_wait", cfg.Schedule.MaxWait.String())
	v.Set("schedule.fail_on_wait_timeout", cfg.Schedule.FailOnWaitTimeout)
	v.Set("panel.size", cfg.Panel.Size)
	v.Set("panel.personas", cfg.Panel.Personas)
	v.Set("panel.convergence_threshold", cfg.Panel.ConvergenceThreshold)
	v.Set("store.path", cfg.Store.Path)
	v.Set("store.cache_enabled", cfg.Store.CacheEnabled)
	v.Set("debug.log_path", cfg.Debug.LogPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.fallback_model", "")
	v.SetDefault("anthropic.distill_model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("schedule.mode", "batch")
	v.SetDefault("schedule.early_start_rounds", 2)
	v.SetDefault("schedule.max_wait", "120s")
	v.SetDefault("schedule.fail_on_wait_timeout", false)

	v.SetDefault("panel.size", 3)
	v.SetDefault("panel.convergence_threshold", 0.55)

	v.SetDefault("breakers.defaults.failure_threshold", 5)
	v.SetDefault("breakers.defaults.recovery_timeout", "30s")
	v.SetDefault("breakers.defaults.success_threshold", 2)
	v.SetDefault("breakers.defaults.transient_failure_threshold", 5)
	v.SetDefault("breakers.defaults.permanent_failure_threshold", 20)
	v.SetDefault("breakers.defaults.transient_recovery_timeout", "15s")
	v.SetDefault("breakers.defaults.permanent_recovery_timeout", "2m")

	v.SetDefault("store.path", "")
	v.SetDefault("store.cache_enabled", true)

	v.SetDefault("debug.log_path", "")
}

// getUserConfigDir returns the XDG config directory for Conclave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conclave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conclave")
	}
	return filepath.Join(home, ".config", "conclave")
}

// findProjectConfig searches for .conclave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conclave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Mode:             "batch",
			EarlyStartRounds: 2,
			MaxWait:          120 * time.Second,
		},
		Panel: PanelConfig{
			Size:                 3,
			ConvergenceThreshold: 0.55,
		},
		Breakers: BreakersConfig{
			Defaults: breaker.DefaultConfig(),
		},
		Store: StoreConfig{
			CacheEnabled: true,
		},
	}
}
