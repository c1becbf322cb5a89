// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	DB     DBConfig
	Relay  RelayConfig
	Relayd RelaydConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DBConfig holds the local record store configuration.
type DBConfig struct {
	// Path to the sqlite database file. Defaults to ~/.leafmark/library.db.
	Path string
}

// RelayConfig holds the untrusted relay endpoints and client behavior.
type RelayConfig struct {
	// BlobURL is the base URL of the anonymous blob relay.
	BlobURL string
	// SignalURL is the base URL of the topic notification relay.
	// Usually the same host as BlobURL when pointed at relayd.
	SignalURL string
	// PollTimeout is how long a single long-poll round is allowed to block.
	PollTimeout time.Duration
	// RetryBase is the initial backoff delay for transient relay failures.
	RetryBase time.Duration
	// RetryMax is the retry ceiling before a transient failure is surfaced.
	RetryMax int
}

// RelaydConfig holds the self-hosted relay daemon configuration.
type RelaydConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// BlobTTL is how long an uploaded blob stays retrievable.
	BlobTTL time.Duration
	// TopicTTL is how long an unconsumed signal message is kept.
	TopicTTL time.Duration
	// MaxBlobBytes caps the accepted blob size.
	MaxBlobBytes int64
	// RequestsPerSecond is the per-IP rate limit.
	RequestsPerSecond float64
}

// Flags carries command-line overrides into Load. Commands bind these to
// their own flag sets (cobra), so this package never touches the global
// flag state itself.
type Flags struct {
	Environment string
	LogLevel    string
	DBPath      string
	BlobURL     string
	SignalURL   string
	RelaydAddr  string
	EnvFile     string
}

// Load builds configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Environment, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(flags.LogLevel, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			Path: getConfigValue(flags.DBPath, "LEAFMARK_DB_PATH", ""),
		},
		Relay: RelayConfig{
			BlobURL:   getConfigValue(flags.BlobURL, "RELAY_BLOB_URL", "http://localhost:8080"),
			SignalURL: getConfigValue(flags.SignalURL, "RELAY_SIGNAL_URL", ""),
			RetryMax:  getIntConfigValue("", "RELAY_RETRY_MAX", 4),
		},
		Relayd: RelaydConfig{
			Addr:              getConfigValue(flags.RelaydAddr, "RELAYD_ADDR", ":8080"),
			MaxBlobBytes:      int64(getIntConfigValue("", "RELAYD_MAX_BLOB_BYTES", 4<<20)),
			RequestsPerSecond: float64(getIntConfigValue("", "RELAYD_RPS", 5)),
		},
	}

	// The signal relay defaults to the blob relay host.
	if cfg.Relay.SignalURL == "" {
		cfg.Relay.SignalURL = cfg.Relay.BlobURL
	}

	// Parse durations.
	var err error
	cfg.Relay.PollTimeout, err = getDurationConfigValue("RELAY_POLL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Relay.RetryBase, err = getDurationConfigValue("RELAY_RETRY_BASE", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	cfg.Relayd.BlobTTL, err = getDurationConfigValue("RELAYD_BLOB_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Relayd.TopicTTL, err = getDurationConfigValue("RELAYD_TOPIC_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	// Expand and validate the database path.
	if err := cfg.expandDBPath(); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.DB.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}

	if c.Relay.BlobURL == "" {
		return errors.New("blob relay URL is required")
	}

	if c.Relay.RetryMax < 1 {
		return fmt.Errorf("relay retry max must be at least 1, got %d", c.Relay.RetryMax)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDBPath expands ~ and makes the path absolute.
func (c *Config) expandDBPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, ".leafmark", "library.db")

	expanded, err := expandPath(c.DB.Path, defaultPath)
	if err != nil {
		return err
	}
	c.DB.Path = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue returns a duration from an env var or default.
func getDurationConfigValue(envKey string, defaultValue time.Duration) (time.Duration, error) {
	strValue := os.Getenv(envKey)
	if strValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
