package config

import (
	"os"
	"strconv"
	"time"

	"cognosis/internal/errors"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	LLM        LLMConfig
	Beacon     BeaconConfig
	Replicate  ReplicateConfig
	Server     ServerConfig
	Experiment ExperimentConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LLMConfig holds settings for the judgment and embedding models
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

// BeaconConfig holds randomness beacon settings
type BeaconConfig struct {
	BaseURL       string
	Timeout       time.Duration
	AllowFallback bool
}

// ReplicateConfig holds image generation settings
type ReplicateConfig struct {
	APIToken      string
	BaseURL       string
	ModelVersion  string
	PollInterval  time.Duration
	Timeout       time.Duration
	MaxConcurrent int
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ExperimentConfig holds protocol parameters for sessions
type ExperimentConfig struct {
	InviteTTL     time.Duration
	Retention     time.Duration
	Delay         time.Duration
	Distractors   int
	MinSimilarity float64
	Baseline      float64
	RewardBase    float64
	RewardMax     float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Database, err = loadDatabaseConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load database config")
	}
	if cfg.LLM, err = loadLLMConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load LLM config")
	}
	if cfg.Beacon, err = loadBeaconConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load beacon config")
	}
	if cfg.Replicate, err = loadReplicateConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load replicate config")
	}
	if cfg.Server, err = loadServerConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load server config")
	}
	if cfg.Experiment, err = loadExperimentConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load experiment config")
	}

	return cfg, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return DatabaseConfig{}, errors.ConfigInvalid("DATABASE_URL is required")
	}

	return DatabaseConfig{
		URL:             url,
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	return LLMConfig{
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:          getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Temperature:    getEnvFloatOrDefault("LLM_TEMPERATURE", 0.0),
		MaxTokens:      getEnvIntOrDefault("LLM_MAX_TOKENS", 512),
		Timeout:        getEnvDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
	}, nil
}

func loadBeaconConfig() (BeaconConfig, error) {
	return BeaconConfig{
		BaseURL:       getEnvOrDefault("BEACON_BASE_URL", "https://api.drand.sh"),
		Timeout:       getEnvDurationOrDefault("BEACON_TIMEOUT", 5*time.Second),
		AllowFallback: getEnvBoolOrDefault("BEACON_ALLOW_FALLBACK", true),
	}, nil
}

func loadReplicateConfig() (ReplicateConfig, error) {
	return ReplicateConfig{
		APIToken:      os.Getenv("REPLICATE_API_TOKEN"),
		BaseURL:       getEnvOrDefault("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ModelVersion:  os.Getenv("REPLICATE_MODEL_VERSION"),
		PollInterval:  getEnvDurationOrDefault("REPLICATE_POLL_INTERVAL", 2*time.Second),
		Timeout:       getEnvDurationOrDefault("REPLICATE_TIMEOUT", 2*time.Minute),
		MaxConcurrent: getEnvIntOrDefault("REPLICATE_MAX_CONCURRENT", 4),
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := getEnvIntOrDefault("PORT", 8080)
	if port < 1 || port > 65535 {
		return ServerConfig{}, errors.ConfigInvalid("PORT must be between 1 and 65535")
	}

	return ServerConfig{
		Port:         port,
		ReadTimeout:  getEnvDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
	}, nil
}

func loadExperimentConfig() (ExperimentConfig, error) {
	distractors := getEnvIntOrDefault("EXPERIMENT_DISTRACTORS", 3)
	if distractors < 1 {
		return ExperimentConfig{}, errors.ConfigInvalid("EXPERIMENT_DISTRACTORS must be at least 1")
	}

	return ExperimentConfig{
		InviteTTL:     getEnvDurationOrDefault("EXPERIMENT_INVITE_TTL", 24*time.Hour),
		Retention:     getEnvDurationOrDefault("EXPERIMENT_RETENTION", 30*24*time.Hour),
		Delay:         getEnvDurationOrDefault("EXPERIMENT_DELAY", 30*time.Minute),
		Distractors:   distractors,
		MinSimilarity: getEnvFloatOrDefault("EXPERIMENT_MIN_SIMILARITY", 0.30),
		Baseline:      getEnvFloatOrDefault("EXPERIMENT_BASELINE", 50),
		RewardBase:    getEnvFloatOrDefault("EXPERIMENT_REWARD_BASE", 10),
		RewardMax:     getEnvFloatOrDefault("EXPERIMENT_REWARD_MAX", 100),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
