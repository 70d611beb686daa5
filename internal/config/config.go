package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	API            APIConfig            `yaml:"api"`
	Cache          CacheConfig          `yaml:"cache"`
	Credentials    CredentialsConfig    `yaml:"credentials"`
	History        HistoryConfig        `yaml:"history"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

// APIConfig points at the remote Bible study backend.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxResultsCap  int           `yaml:"max_results_cap"`
	DefaultVersion string        `yaml:"default_translation"`
}

type CacheConfig struct {
	SearchResults int `yaml:"search_results"`
}

type CredentialsConfig struct {
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	Workers    int    `yaml:"workers"`
	BufferSize int    `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "3000",
			CorsOrigins: []string{"*"},
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        30 * time.Second,
			IdleTimeout:    90 * time.Second,
			MaxResultsCap:  100,
			DefaultVersion: "NIV",
		},
		Cache: CacheConfig{
			SearchResults: 256,
		},
		Credentials: CredentialsConfig{
			Path: "credentials.db",
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       "history.db",
			Workers:    2,
			BufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	// API overrides
	if val := os.Getenv("BIBLE_API_URL"); val != "" {
		config.API.BaseURL = val
	}
	if val := os.Getenv("BIBLE_API_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.API.Timeout = d
		}
	}
	if val := os.Getenv("BIBLE_API_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.API.IdleTimeout = d
		}
	}
	if val := os.Getenv("MAX_RESULTS_CAP"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.API.MaxResultsCap = i
		}
	}
	if val := os.Getenv("DEFAULT_TRANSLATION"); val != "" {
		config.API.DefaultVersion = val
	}

	// Cache overrides
	if val := os.Getenv("SEARCH_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Cache.SearchResults = i
		}
	}

	// Credential store overrides
	if val := os.Getenv("CREDENTIALS_PATH"); val != "" {
		config.Credentials.Path = val
	}

	// History overrides
	if val := os.Getenv("HISTORY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.History.Enabled = b
		}
	}
	if val := os.Getenv("HISTORY_PATH"); val != "" {
		config.History.Path = val
	}
	if val := os.Getenv("HISTORY_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.History.Workers = i
		}
	}
	if val := os.Getenv("HISTORY_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.History.BufferSize = i
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errors []string

	if config.API.BaseURL == "" {
		errors = append(errors, "BIBLE_API_URL is required")
	} else if !strings.HasPrefix(config.API.BaseURL, "http://") && !strings.HasPrefix(config.API.BaseURL, "https://") {
		errors = append(errors, fmt.Sprintf("BIBLE_API_URL must be an http(s) URL (current: %s)", config.API.BaseURL))
	}

	if config.API.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("api timeout must be positive (current: %s)", config.API.Timeout))
	}

	if config.API.MaxResultsCap < 1 || config.API.MaxResultsCap > 100 {
		errors = append(errors, fmt.Sprintf("max_results_cap must be between 1 and 100 (current: %d)", config.API.MaxResultsCap))
	}

	if config.Cache.SearchResults < 0 {
		errors = append(errors, fmt.Sprintf("search cache size cannot be negative (current: %d)", config.Cache.SearchResults))
	}

	if config.History.Enabled && config.History.Path == "" {
		errors = append(errors, "history path is required when history is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Load is a convenience wrapper over LoadYAML with the default path.
func Load() (*Config, error) {
	return LoadYAML("")
}
