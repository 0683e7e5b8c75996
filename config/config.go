package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultMaxPayloadBytes is the byte ceiling applied to free-text payloads
// (tool inputs, tool results, message content) before they are persisted.
const DefaultMaxPayloadBytes = 50 * 1024

// Config holds the recorder configuration
type Config struct {
	// DBPath is the location of the SQLite telemetry database
	DBPath string `yaml:"db_path"`

	// MaxPayloadBytes is the truncation ceiling for free-text payloads
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// Disabled turns recording off entirely
	Disabled bool `yaml:"disabled"`
}

// Load loads configuration with the following precedence:
// built-in defaults, then the optional YAML config file, then environment variables.
func Load() *Config {
	cfg := &Config{
		DBPath:          defaultDBPath(),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
	}

	cfg.applyFile(configFilePath())
	cfg.applyEnv()

	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	return cfg
}

// applyFile overlays values from a YAML config file if it exists.
// A missing or unparseable file is ignored; recording must not fail on config.
func (c *Config) applyFile(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return
	}
	if fileCfg.DBPath != "" {
		c.DBPath = fileCfg.DBPath
	}
	if fileCfg.MaxPayloadBytes > 0 {
		c.MaxPayloadBytes = fileCfg.MaxPayloadBytes
	}
	if fileCfg.Disabled {
		c.Disabled = true
	}
}

// applyEnv overlays values from environment variables
func (c *Config) applyEnv() {
	c.DBPath = getEnvString("TELEMETRIZE_DB_PATH", c.DBPath)
	c.MaxPayloadBytes = getEnvInt("TELEMETRIZE_MAX_PAYLOAD_BYTES", c.MaxPayloadBytes)
	c.Disabled = getEnvBool("TELEMETRIZE_DISABLED", c.Disabled)
}

// defaultDBPath returns the fixed per-user database location
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "telemetry.db"
	}
	return filepath.Join(home, ".telemetrize", "telemetry.db")
}

// configFilePath returns the optional config file location
func configFilePath() string {
	if path := os.Getenv("TELEMETRIZE_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".telemetrize", "config.yaml")
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
