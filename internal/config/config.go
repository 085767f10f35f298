// Package config handles configuration loading and management for triage.
// It supports XDG config paths, project-level overrides, and environment
// variables, with an embedded JSON schema guarding the file contents.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kestrelworks/triage/internal/score"
)

// Config holds all configuration for triage.
type Config struct {
	Resolve   ResolveConfig   `mapstructure:"resolve"`
	Deps      DepsConfig      `mapstructure:"deps"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Conflicts ConflictsConfig `mapstructure:"conflicts"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Board     BoardConfig     `mapstructure:"board"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	API       APIConfig       `mapstructure:"api"`
	AWS       AWSConfig       `mapstructure:"aws"`
	DB        DBConfig        `mapstructure:"db"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Log       LogConfig       `mapstructure:"log"`
}

// ResolveConfig holds entity resolution thresholds.
type ResolveConfig struct {
	// Threshold is the minimum similarity for auto-resolution.
	Threshold float64 `mapstructure:"threshold"`
	// Margin is the minimum lead over the runner-up candidate.
	Margin float64 `mapstructure:"margin"`
}

// DepsConfig holds dependency detection thresholds.
type DepsConfig struct {
	// SimilarityFloor is the minimum similarity for a proposed edge.
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	// DuplicateThreshold marks near-identical tasks as duplicates.
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
}

// ScoringConfig holds assignment scoring settings.
type ScoringConfig struct {
	Weights score.Weights `mapstructure:"weights"`
}

// ConflictsConfig holds conflict detection settings.
type ConflictsConfig struct {
	// OverloadFactor is the capacity multiplier above which an
	// assignment conflicts.
	OverloadFactor float64 `mapstructure:"overload_factor"`
}

// CacheConfig holds local cache settings.
type CacheConfig struct {
	// Staleness is how old a cache entry may be before a board refresh.
	Staleness time.Duration `mapstructure:"staleness"`
}

// BoardConfig holds board client settings.
type BoardConfig struct {
	// MaxRetries bounds retry attempts on retryable board errors.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration `mapstructure:"retry_base"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedder: "local" or "gemini".
	Provider string `mapstructure:"provider"`
	// Dimension is the local embedder's vector dimension.
	Dimension int `mapstructure:"dimension"`
}

// APIConfig holds Anthropic API settings for the intent classifier.
type APIConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
}

// AWSConfig holds AWS settings used when Bedrock is enabled.
type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// DBConfig holds cache database settings.
type DBConfig struct {
	// Path overrides the default cache database location.
	Path string `mapstructure:"path"`
}

// JournalConfig holds intake journal settings.
type JournalConfig struct {
	// Path overrides the default journal database location.
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TRIAGE_*, ANTHROPIC_API_KEY)
// 2. Project config (.triage.yaml in current directory or parent)
// 3. User config (~/.config/triage/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	// A .env file beside the project config supplies API keys.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// The schema guards file contents; env overrides arrive as strings
	// and are validated after decoding instead.
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return nil, err
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file, layered over the
// defaults only.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return nil, err
	}

	bindEnv(v)

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.API.APIKey = expandEnv(cfg.API.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv maps environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	v.BindEnv("api.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("api.model", "TRIAGE_API_MODEL")
	v.BindEnv("api.use_bedrock", "TRIAGE_USE_BEDROCK")
	v.BindEnv("aws.region", "TRIAGE_AWS_REGION", "AWS_REGION")
	v.BindEnv("aws.profile", "TRIAGE_AWS_PROFILE", "AWS_PROFILE")
	v.BindEnv("embedding.provider", "TRIAGE_EMBEDDING_PROVIDER")
	v.BindEnv("db.path", "TRIAGE_DB_PATH")
	v.BindEnv("journal.path", "TRIAGE_JOURNAL_PATH")
	v.BindEnv("log.debug", "TRIAGE_DEBUG")
}

// Validate applies the range rules the JSON schema cannot express.
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	if w.Expertise < 0 || w.Load < 0 || w.Proximity < 0 {
		return fmt.Errorf("scoring weights must not be negative")
	}
	if w.Expertise+w.Load+w.Proximity <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	thresholds := []struct {
		name string
		val  float64
	}{
		{"resolve.threshold", c.Resolve.Threshold},
		{"resolve.margin", c.Resolve.Margin},
		{"deps.similarity_floor", c.Deps.SimilarityFloor},
		{"deps.duplicate_threshold", c.Deps.DuplicateThreshold},
	}
	for _, th := range thresholds {
		if th.val < 0 || th.val > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", th.name, th.val)
		}
	}
	if c.Conflicts.OverloadFactor <= 0 {
		return fmt.Errorf("conflicts.overload_factor must be positive, got %v", c.Conflicts.OverloadFactor)
	}
	return nil
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

	v.Set("resolve.threshold", cfg.Resolve.Threshold)
	v.Set("resolve.margin", cfg.Resolve.Margin)
	v.Set("deps.similarity_floor", cfg.Deps.SimilarityFloor)
	v.Set("deps.duplicate_threshold", cfg.Deps.DuplicateThreshold)
	v.Set("scoring.weights.expertise", cfg.Scoring.Weights.Expertise)
	v.Set("scoring.weights.load", cfg.Scoring.Weights.Load)
	v.Set("scoring.weights.proximity", cfg.Scoring.Weights.Proximity)
	v.Set("conflicts.overload_factor", cfg.Conflicts.OverloadFactor)
	v.Set("cache.staleness", cfg.Cache.Staleness.String())
	v.Set("board.max_retries", cfg.Board.MaxRetries)
	v.Set("board.retry_base", cfg.Board.RetryBase.String())
	v.Set("embedding.provider", cfg.Embedding.Provider)
	v.Set("embedding.dimension", cfg.Embedding.Dimension)
	v.Set("api.model", cfg.API.Model)
	v.Set("api.use_bedrock", cfg.API.UseBedrock)
	v.Set("aws.region", cfg.AWS.Region)
	v.Set("aws.profile", cfg.AWS.Profile)
	v.Set("db.path", cfg.DB.Path)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("log.debug", cfg.Log.Debug)

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
	// Resolution defaults
	v.SetDefault("resolve.threshold", 0.80)
	v.SetDefault("resolve.margin", 0.05)

	// Dependency detection defaults
	v.SetDefault("deps.similarity_floor", 0.6)
	v.SetDefault("deps.duplicate_threshold", 0.85)

	// Scoring defaults
	v.SetDefault("scoring.weights.expertise", 0.5)
	v.SetDefault("scoring.weights.load", 0.3)
	v.SetDefault("scoring.weights.proximity", 0.2)

	// Conflict defaults
	v.SetDefault("conflicts.overload_factor", 1.2)

	// Cache defaults
	v.SetDefault("cache.staleness", "5m")

	// Board defaults
	v.SetDefault("board.max_retries", 3)
	v.SetDefault("board.retry_base", "500ms")

	// Embedding defaults
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.dimension", 256)

	// API defaults
	v.SetDefault("api.model", "")
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.use_bedrock", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	// Storage defaults: empty means the XDG data locations
	v.SetDefault("db.path", "")
	v.SetDefault("journal.path", "")

	// Logging defaults
	v.SetDefault("log.debug", false)
}

// getUserConfigDir returns the XDG config directory for triage.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "triage")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "triage")
	}
	return filepath.Join(home, ".config", "triage")
}

// findProjectConfig searches for .triage.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".triage.yaml")
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
		Resolve: ResolveConfig{
			Threshold: 0.80,
			Margin:    0.05,
		},
		Deps: DepsConfig{
			SimilarityFloor:    0.6,
			DuplicateThreshold: 0.85,
		},
		Scoring: ScoringConfig{
			Weights: score.DefaultWeights(),
		},
		Conflicts: ConflictsConfig{
			OverloadFactor: 1.2,
		},
		Cache: CacheConfig{
			Staleness: 5 * time.Minute,
		},
		Board: BoardConfig{
			MaxRetries: 3,
			RetryBase:  500 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 256,
		},
	}
}
