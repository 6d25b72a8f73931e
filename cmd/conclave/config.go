package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conclave-labs/conclave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Conclave configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conclave/config.yaml
Project-specific overrides can be placed in .conclave.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("anthropic.fallback_model: %s\n", orUnset(cfg.Anthropic.FallbackModel))
	fmt.Printf("anthropic.distill_model: %s\n", orUnset(cfg.Anthropic.DistillModel))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("schedule.mode: %s\n", cfg.Schedule.Mode)
	fmt.Printf("schedule.early_start_rounds: %d\n", cfg.Schedule.EarlyStartRounds)
	fmt.Printf("schedule.max_wait: %s\n", cfg.Schedule.MaxWait)
	fmt.Printf("schedule.fail_on_wait_timeout: %t\n", cfg.Schedule.FailOnWaitTimeout)
	fmt.Printf("panel.size: %d\n", cfg.Panel.Size)
	fmt.Printf("panel.convergence_threshold: %.2f\n", cfg.Panel.ConvergenceThreshold)
	fmt.Printf("store.path: %s\n", orUnset(cfg.Store.Path))
	fmt.Printf("store.cache_enabled: %t\n", cfg.Store.CacheEnabled)
	fmt.Printf("debug.log_path: %s\n", orUnset(cfg.Debug.LogPath))
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.fallback_model":
		return orUnset(cfg.Anthropic.FallbackModel), nil
	case "anthropic.distill_model":
		return orUnset(cfg.Anthropic.DistillModel), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "schedule.mode":
		return cfg.Schedule.Mode, nil
	case "schedule.early_start_rounds":
		return strconv.Itoa(cfg.Schedule.EarlyStartRounds), nil
	case "schedule.max_wait":
		return cfg.Schedule.MaxWait.String(), nil
	case "schedule.fail_on_wait_timeout":
		return strconv.FormatBool(cfg.Schedule.FailOnWaitTimeout), nil
	case "panel.size":
		return strconv.Itoa(cfg.Panel.Size), nil
	case "panel.convergence_threshold":
		return strconv.FormatFloat(cfg.Panel.ConvergenceThreshold, 'f', 2, 64), nil
	case "store.path":
		return orUnset(cfg.Store.Path), nil
	case "store.cache_enabled":
		return strconv.FormatBool(cfg.Store.CacheEnabled), nil
	case "debug.log_path":
		return orUnset(cfg.Debug.LogPath), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.fallback_model":
		cfg.Anthropic.FallbackModel = value
	case "anthropic.distill_model":
		cfg.Anthropic.DistillModel = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "schedule.mode":
		if value != "batch" && value != "speculative" {
			return fmt.Errorf("invalid schedule mode %q: must be batch or speculative", value)
		}
		cfg.Schedule.Mode = value
	case "schedule.early_start_rounds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for early_start_rounds: %w", err)
		}
		cfg.Schedule.EarlyStartRounds = n
	case "schedule.max_wait":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for max_wait: %w", err)
		}
		cfg.Schedule.MaxWait = d
	case "schedule.fail_on_wait_timeout":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for fail_on_wait_timeout: %w", err)
		}
		cfg.Schedule.FailOnWaitTimeout = b
	case "panel.size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for panel.size: %w", err)
		}
		cfg.Panel.Size = n
	case "panel.convergence_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for convergence_threshold: %w", err)
		}
		cfg.Panel.ConvergenceThreshold = f
	case "store.path":
		cfg.Store.Path = value
	case "store.cache_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for cache_enabled: %w", err)
		}
		cfg.Store.CacheEnabled = b
	case "debug.log_path":
		cfg.Debug.LogPath = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
