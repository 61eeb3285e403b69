// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	apiKey := cfg.GetAPIKey(cfg.Dolibarr.APIKey, "DOLIBARR_API_KEY")
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Dolibarr      DolibarrConfig      `yaml:"dolibarr"`
	Matching      MatchingConfig      `yaml:"matching"`
	Storage       StorageConfig       `yaml:"storage"`
	Extractor     ExtractorConfig     `yaml:"extractor"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DolibarrConfig holds ERP connection settings
type DolibarrConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RetryMax       int    `yaml:"retry_max"`
	BankAccountID  int64  `yaml:"bank_account_id"`
	PaymentModeID  int64  `yaml:"payment_mode_id"` // 2 = bank transfer
}

// MatchingConfig holds scoring thresholds
type MatchingConfig struct {
	AmountTolerance         string  `yaml:"amount_tolerance"`
	DateToleranceDays       int     `yaml:"date_tolerance_days"`
	ConfidentNameSimilarity float64 `yaml:"confident_name_similarity"`
	WeakNameSimilarity      float64 `yaml:"weak_name_similarity"`
	InvoiceMinScore         int     `yaml:"invoice_min_score"`
	BestMatchMinScore       int     `yaml:"best_match_min_score"`
}

// ExtractorConfig holds invoice document extraction settings
type ExtractorConfig struct {
	Provider string `yaml:"provider"` // gemini or openai
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// SchedulerConfig holds periodic auto-reconcile settings
type SchedulerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	Timezone  string `yaml:"timezone"`
	AutoApply bool   `yaml:"auto_apply"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${DOLIBARR_API_KEY})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Dolibarr: DolibarrConfig{
			TimeoutSeconds: 30,
			RetryMax:       3,
			PaymentModeID:  2,
		},
		Matching: MatchingConfig{
			AmountTolerance:         "0.01",
			DateToleranceDays:       7,
			ConfidentNameSimilarity: 70,
			WeakNameSimilarity:      50,
			InvoiceMinScore:         30,
			BestMatchMinScore:       50,
		},
		Storage: StorageConfig{
			DatabasePath: "bankrecon.db",
		},
		Extractor: ExtractorConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		Scheduler: SchedulerConfig{
			Schedule: "@every 30m",
			Timezone: "UTC",
		},
		API: APIConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := Default()

	cfg.Dolibarr.URL = getEnv("DOLIBARR_URL", cfg.Dolibarr.URL)
	cfg.Dolibarr.APIKey = os.Getenv("DOLIBARR_API_KEY")
	cfg.Dolibarr.TimeoutSeconds = getEnvInt("DOLIBARR_TIMEOUT_SECONDS", cfg.Dolibarr.TimeoutSeconds)
	cfg.Dolibarr.RetryMax = getEnvInt("DOLIBARR_RETRY_MAX", cfg.Dolibarr.RetryMax)
	cfg.Dolibarr.BankAccountID = int64(getEnvInt("DOLIBARR_BANK_ACCOUNT_ID", 0))
	cfg.Dolibarr.PaymentModeID = int64(getEnvInt("DOLIBARR_PAYMENT_MODE_ID", int(cfg.Dolibarr.PaymentModeID)))

	cfg.Matching.AmountTolerance = getEnv("MATCH_AMOUNT_TOLERANCE", cfg.Matching.AmountTolerance)
	cfg.Matching.DateToleranceDays = getEnvInt("MATCH_DATE_TOLERANCE_DAYS", cfg.Matching.DateToleranceDays)

	cfg.Storage.DatabasePath = getEnv("BANKRECON_DB_PATH", cfg.Storage.DatabasePath)

	cfg.Extractor.Provider = getEnv("EXTRACTOR_PROVIDER", cfg.Extractor.Provider)
	cfg.Extractor.Model = getEnv("EXTRACTOR_MODEL", cfg.Extractor.Model)

	cfg.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", false)
	cfg.Scheduler.Schedule = getEnv("SCHEDULER_SCHEDULE", cfg.Scheduler.Schedule)
	cfg.Scheduler.Timezone = getEnv("SCHEDULER_TIMEZONE", cfg.Scheduler.Timezone)
	cfg.Scheduler.AutoApply = getEnvBool("SCHEDULER_AUTO_APPLY", false)

	cfg.API.Port = getEnvInt("PORT", cfg.API.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}

	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)

	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetAPIKey retrieves an API key from config first, then tries multiple environment variable names
// Usage: GetAPIKey(cfg.Dolibarr.APIKey, "DOLIBARR_API_KEY")
//
//	GetAPIKey(cfg.Extractor.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
func (c *Config) GetAPIKey(configValue string, envVarNames ...string) string {
	// First, try the config value
	if configValue != "" {
		return configValue
	}

	// Then try each environment variable in order
	for _, envVar := range envVarNames {
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}

	return ""
}

// ExtractorKeyEnvVars returns the env vars consulted for the extractor key
func (c *Config) ExtractorKeyEnvVars() []string {
	if strings.EqualFold(c.Extractor.Provider, "openai") {
		return []string{"OPENAI_API_KEY", "OPENAI_APIKEY"}
	}
	return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
}
