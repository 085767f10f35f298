package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/triage/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify triage configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/triage/config.yaml.
Project-specific overrides can be placed in .triage.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch len(args) {
	case 0:
		displayAllConfig(cfg)
		return nil
	case 1:
		return displayConfigKey(cfg, args[0])
	default:
		return setConfigKey(cfg, args[0], args[1])
	}
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.API.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("resolve.threshold: %v\n", cfg.Resolve.Threshold)
	fmt.Printf("resolve.margin: %v\n", cfg.Resolve.Margin)
	fmt.Printf("deps.similarity_floor: %v\n", cfg.Deps.SimilarityFloor)
	fmt.Printf("deps.duplicate_threshold: %v\n", cfg.Deps.DuplicateThreshold)
	fmt.Printf("scoring.weights.expertise: %v\n", cfg.Scoring.Weights.Expertise)
	fmt.Printf("scoring.weights.load: %v\n", cfg.Scoring.Weights.Load)
	fmt.Printf("scoring.weights.proximity: %v\n", cfg.Scoring.Weights.Proximity)
	fmt.Printf("conflicts.overload_factor: %v\n", cfg.Conflicts.OverloadFactor)
	fmt.Printf("cache.staleness: %s\n", cfg.Cache.Staleness)
	fmt.Printf("board.max_retries: %d\n", cfg.Board.MaxRetries)
	fmt.Printf("board.retry_base: %s\n", cfg.Board.RetryBase)
	fmt.Printf("embedding.provider: %s\n", cfg.Embedding.Provider)
	fmt.Printf("embedding.dimension: %d\n", cfg.Embedding.Dimension)
	fmt.Printf("api.model: %s\n", displayOrDefault(cfg.API.Model))
	fmt.Printf("api.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("api.use_bedrock: %t\n", cfg.API.UseBedrock)
	fmt.Printf("aws.region: %s\n", displayOrDefault(cfg.AWS.Region))
	fmt.Printf("aws.profile: %s\n", displayOrDefault(cfg.AWS.Profile))
	fmt.Printf("db.path: %s\n", displayOrDefault(cfg.DB.Path))
	fmt.Printf("journal.path: %s\n", displayOrDefault(cfg.Journal.Path))
	fmt.Printf("log.debug: %t\n", cfg.Log.Debug)

	fmt.Printf("\nUser config: %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("Project config: %s\n", project)
	}
}

func displayOrDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) error {
	switch key {
	case "resolve.threshold":
		fmt.Println(cfg.Resolve.Threshold)
	case "resolve.margin":
		fmt.Println(cfg.Resolve.Margin)
	case "deps.similarity_floor":
		fmt.Println(cfg.Deps.SimilarityFloor)
	case "deps.duplicate_threshold":
		fmt.Println(cfg.Deps.DuplicateThreshold)
	case "scoring.weights.expertise":
		fmt.Println(cfg.Scoring.Weights.Expertise)
	case "scoring.weights.load":
		fmt.Println(cfg.Scoring.Weights.Load)
	case "scoring.weights.proximity":
		fmt.Println(cfg.Scoring.Weights.Proximity)
	case "conflicts.overload_factor":
		fmt.Println(cfg.Conflicts.OverloadFactor)
	case "cache.staleness":
		fmt.Println(cfg.Cache.Staleness)
	case "board.max_retries":
		fmt.Println(cfg.Board.MaxRetries)
	case "board.retry_base":
		fmt.Println(cfg.Board.RetryBase)
	case "embedding.provider":
		fmt.Println(cfg.Embedding.Provider)
	case "embedding.dimension":
		fmt.Println(cfg.Embedding.Dimension)
	case "api.model":
		fmt.Println(cfg.API.Model)
	case "api.use_bedrock":
		fmt.Println(cfg.API.UseBedrock)
	case "aws.region":
		fmt.Println(cfg.AWS.Region)
	case "aws.profile":
		fmt.Println(cfg.AWS.Profile)
	case "db.path":
		fmt.Println(cfg.DB.Path)
	case "journal.path":
		fmt.Println(cfg.Journal.Path)
	case "log.debug":
		fmt.Println(cfg.Log.Debug)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// setConfigKey updates a value and writes the user config file.
func setConfigKey(cfg *config.Config, key, value string) error {
	var err error
	switch key {
	case "resolve.threshold":
		cfg.Resolve.Threshold, err = strconv.ParseFloat(value, 64)
	case "resolve.margin":
		cfg.Resolve.Margin, err = strconv.ParseFloat(value, 64)
	case "deps.similarity_floor":
		cfg.Deps.SimilarityFloor, err = strconv.ParseFloat(value, 64)
	case "deps.duplicate_threshold":
		cfg.Deps.DuplicateThreshold, err = strconv.ParseFloat(value, 64)
	case "scoring.weights.expertise":
		cfg.Scoring.Weights.Expertise, err = strconv.ParseFloat(value, 64)
	case "scoring.weights.load":
		cfg.Scoring.Weights.Load, err = strconv.ParseFloat(value, 64)
	case "scoring.weights.proximity":
		cfg.Scoring.Weights.Proximity, err = strconv.ParseFloat(value, 64)
	case "conflicts.overload_factor":
		cfg.Conflicts.OverloadFactor, err = strconv.ParseFloat(value, 64)
	case "cache.staleness":
		cfg.Cache.Staleness, err = time.ParseDuration(value)
	case "board.max_retries":
		cfg.Board.MaxRetries, err = strconv.Atoi(value)
	case "board.retry_base":
		cfg.Board.RetryBase, err = time.ParseDuration(value)
	case "embedding.provider":
		cfg.Embedding.Provider = value
	case "embedding.dimension":
		cfg.Embedding.Dimension, err = strconv.Atoi(value)
	case "api.model":
		cfg.API.Model = value
	case "api.use_bedrock":
		cfg.API.UseBedrock, err = strconv.ParseBool(value)
	case "aws.region":
		cfg.AWS.Region = value
	case "aws.profile":
		cfg.AWS.Profile = value
	case "db.path":
		cfg.DB.Path = value
	case "journal.path":
		cfg.Journal.Path = value
	case "log.debug":
		cfg.Log.Debug, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(os.Stdout, "%s %s = %s\n", color.GreenString("✓"), key, value)
	return nil
}
