// Package config provides configuration loading for the paper extractor.
// Values come from DefaultConfig, then an optional YAML file, then environment
// variables (with .env support).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/paper-extractor/internal/domain"
)

// Config holds all configuration for the extractor.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// ExtractionConfig holds inference service settings.
type ExtractionConfig struct {
	APIKey           string        `yaml:"api_key"`
	PageModel        string        `yaml:"page_model"`
	ChemistryModel   string        `yaml:"chemistry_model"`
	PageTimeout      time.Duration `yaml:"page_timeout"`
	ChemistryTimeout time.Duration `yaml:"chemistry_timeout"`
}

// EventsConfig selects the event fan-out driver.
type EventsConfig struct {
	Driver string      `yaml:"driver"` // memory or redis
	Buffer int         `yaml:"buffer"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path falls back to $CONFIG_PATH.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   50 << 20,
			AllowedOrigins:   []string{"*"},
		},
		Extraction: ExtractionConfig{
			PageModel:        "gemini-2.5-flash",
			ChemistryModel:   "gemini-3-pro-preview",
			PageTimeout:      2 * time.Minute,
			ChemistryTimeout: 3 * time.Minute,
		},
		Events: EventsConfig{
			Driver: "memory",
			Buffer: 64,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "paper-extractor:events",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "paper-extractor",
		},
	}
}

// Validate checks the configuration for errors. The API key is not checked
// here; see RequireAPIKey.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return domain.ConfigError("max_upload_bytes must be positive", nil)
	}

	if c.Extraction.PageModel == "" || c.Extraction.ChemistryModel == "" {
		return domain.ConfigError("page_model and chemistry_model are required", nil)
	}

	if c.Extraction.PageTimeout <= 0 || c.Extraction.ChemistryTimeout <= 0 {
		return domain.ConfigError("extraction timeouts must be positive", nil)
	}

	if c.Events.Driver != "memory" && c.Events.Driver != "redis" {
		return domain.ConfigError(fmt.Sprintf("invalid events driver: %s", c.Events.Driver), nil)
	}

	if c.Events.Buffer < 1 {
		return domain.ConfigError("events buffer must be at least 1", nil)
	}

	return nil
}

// RequireAPIKey returns the inference service key or a config error when unset.
func (c *Config) RequireAPIKey() (string, error) {
	if c.Extraction.APIKey == "" {
		return "", domain.ConfigError("GEMINI_API_KEY environment variable is not set", nil)
	}
	return c.Extraction.APIKey, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"} {
		if v := os.Getenv(key); v != "" {
			cfg.Extraction.APIKey = v
			break
		}
	}

	if v := os.Getenv("PAGE_MODEL"); v != "" {
		cfg.Extraction.PageModel = v
	}

	if v := os.Getenv("CHEMISTRY_MODEL"); v != "" {
		cfg.Extraction.ChemistryModel = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Events.Driver = "redis"
		cfg.Events.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
