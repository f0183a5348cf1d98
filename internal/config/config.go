package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "ONEMIRROR_"
)

// Config holds application configuration
type Config struct {
	// DefaultProfile is the default authentication profile to use
	DefaultProfile string `json:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// MaxRequestsPerMinute caps API requests inside a sliding window
	MaxRequestsPerMinute int `json:"maxRequestsPerMinute"`

	// ThrottleLimit is the maximum parallel transfer width
	ThrottleLimit int `json:"throttleLimit"`

	// BatchSize is the number of files dispatched per batch
	BatchSize int `json:"batchSize"`

	// ChunkSizeMB is the ranged download chunk size for large files
	ChunkSizeMB int `json:"chunkSizeMB"`

	// Excludes are path prefixes skipped during backup and verify
	Excludes []string `json:"excludes"`

	// IncludeShared controls whether shared items are backed up
	IncludeShared bool `json:"includeShared"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// LogFile is an optional JSON log destination
	LogFile string `json:"logFile,omitempty"`

	// ColorOutput enables color output for table format
	ColorOutput bool `json:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:       "default",
		DefaultOutputFormat:  types.OutputFormatJSON,
		MaxRetries:           utils.DefaultMaxRetries,
		RetryBaseDelay:       utils.DefaultRetryDelayMs,
		MaxRequestsPerMinute: utils.DefaultMaxRequests,
		ThrottleLimit:        utils.DefaultThrottleLimit,
		BatchSize:            utils.DefaultBatchSize,
		ChunkSizeMB:          utils.DefaultChunkSizeMB,
		LogLevel:             "normal",
		ColorOutput:          true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from the config file
func (c *Config) loadFromFile() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_REQUESTS_PER_MINUTE"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.MaxRequestsPerMinute = limit
		}
	}
	if v := os.Getenv(EnvPrefix + "THROTTLE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.ThrottleLimit = limit
		}
	}
	if v := os.Getenv(EnvPrefix + "BATCH_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.BatchSize = size
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE_MB"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.ChunkSizeMB = size
		}
	}
	if v := os.Getenv(EnvPrefix + "INCLUDE_SHARED"); v != "" {
		c.IncludeShared = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("max requests per minute must be positive, got: %d", c.MaxRequestsPerMinute)
	}

	if c.ThrottleLimit < utils.MinThrottleWidth {
		return fmt.Errorf("throttle limit must be at least %d, got: %d", utils.MinThrottleWidth, c.ThrottleLimit)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got: %d", c.BatchSize)
	}

	if c.ChunkSizeMB < 1 || c.ChunkSizeMB > 250 {
		return fmt.Errorf("chunk size must be between 1 and 250 MB, got: %d", c.ChunkSizeMB)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "onemirror"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
