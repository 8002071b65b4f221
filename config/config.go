// Package config provides configuration management for the slide service.
// It covers the HTTP server, the LLM gateway, prompt templates, storage,
// authentication, logging, the circuit breaker and the admission queue.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Prompts        PromptsConfig        `yaml:"prompts"`
	Storage        StorageConfig        `yaml:"storage"`
	Auth           AuthConfig           `yaml:"auth"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Queue          QueueConfig          `yaml:"queue"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. A full generation runs
	// three sequential LLM calls, so the default is generous (default: 10m)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for in-flight requests
	// during graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists origins echoed back by the CORS middleware.
	// A single "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LLMConfig holds the gateway configuration.
type LLMConfig struct {
	// Client selects the gateway implementation: "anthropic" talks to the
	// Messages API directly, "gollm" goes through the gollm library and
	// supports any of its providers.
	Client string `yaml:"client"`

	// Provider is the gollm provider name (only used by the gollm client)
	Provider string `yaml:"provider"`

	// Model is the model identifier sent with every request
	Model string `yaml:"model"`

	// APIKey is the provider credential.
	// Use environment variables (e.g., ${ANTHROPIC_API_KEY}) for secure configuration
	APIKey string `yaml:"api_key"`

	// Endpoint is the API base URL (default: https://api.anthropic.com)
	Endpoint string `yaml:"endpoint"`

	// APIVersion is sent as the anthropic-version header (default: 2023-06-01)
	APIVersion string `yaml:"api_version"`

	// Timeout bounds a single gateway call (default: 120s)
	Timeout time.Duration `yaml:"timeout"`

	// StageMaxTokens is the budget for the Architect, Designer and Corrector calls
	StageMaxTokens int `yaml:"stage_max_tokens"`

	// TitleMaxTokens is the budget for the title summarizer call
	TitleMaxTokens int `yaml:"title_max_tokens"`

	// RequestsPerSecond throttles outbound calls across the whole process.
	// Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the limiter bucket size (default: 1 when throttling is on)
	Burst int `yaml:"burst"`

	// MaxInputTokens rejects raw user text above this many tokens.
	// Zero disables the check.
	MaxInputTokens int `yaml:"max_input_tokens"`

	// TokenEncoding is the tiktoken encoding used to count input tokens
	// (default: cl100k_base)
	TokenEncoding string `yaml:"token_encoding"`
}

// PromptsConfig controls where prompt templates come from.
type PromptsConfig struct {
	// Dir overrides the built-in templates with files from this directory.
	Dir string `yaml:"dir"`

	// Watch reloads templates from Dir when they change on disk.
	Watch bool `yaml:"watch"`
}

// StorageConfig selects the session/history/user store.
type StorageConfig struct {
	// Driver is "memory" or "sqlite"
	Driver string `yaml:"driver"`

	// Path is the SQLite database file
	Path string `yaml:"path"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	Issuer            string        `yaml:"issuer"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	SeedAdminEmail    string        `yaml:"seed_admin_email"`
	SeedAdminPassword string        `yaml:"seed_admin_password"`
}

// LoggingConfig defines logging behavior and output format.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// CircuitBreakerConfig holds the breaker settings for the LLM gateway.
type CircuitBreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period in the closed state after which
	// failure counts are cleared
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// QueueConfig bounds concurrent pipeline runs.
type QueueConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxConcurrent int  `yaml:"max_concurrent"`
	MaxQueued     int  `yaml:"max_queued"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
		},
		LLM: LLMConfig{
			Client:         "anthropic",
			Provider:       "anthropic",
			Model:          "claude-3-5-sonnet-20241022",
			Endpoint:       "https://api.anthropic.com",
			APIVersion:     "2023-06-01",
			Timeout:        120 * time.Second,
			StageMaxTokens: 8192,
			TitleMaxTokens: 100,
			TokenEncoding:  "cl100k_base",
		},
		Storage: StorageConfig{
			Driver: "memory",
			Path:   "projectc.db",
		},
		Auth: AuthConfig{
			Issuer:   "projectc",
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Queue: QueueConfig{
			Enabled:       true,
			MaxConcurrent: 16,
			MaxQueued:     64,
		},
	}
}

// LoadFile loads configuration from a YAML file.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. A
// variable that is unset or empty falls back to its default. Nested
// references produced by a substitution are resolved until the text is
// stable.
func expandEnvVars(s string) string {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})

	for prev := ""; prev != result; {
		prev = result
		result = os.Expand(result, os.Getenv)
	}
	return result
}

// Load loads configuration from an io.Reader. Values are decoded on top
// of DefaultConfig and validated.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(strings.NewReader(expandEnvVars(string(data))))
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	switch c.LLM.Client {
	case "anthropic":
		if c.LLM.Endpoint == "" {
			return fmt.Errorf("empty LLM endpoint")
		}
	case "gollm":
		if c.LLM.Provider == "" {
			return fmt.Errorf("empty LLM provider")
		}
	default:
		return fmt.Errorf("invalid LLM client: %q", c.LLM.Client)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("empty LLM model")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("negative LLM timeout: %v", c.LLM.Timeout)
	}
	if c.LLM.StageMaxTokens <= 0 {
		return fmt.Errorf("stage max tokens must be positive: %d", c.LLM.StageMaxTokens)
	}
	if c.LLM.TitleMaxTokens <= 0 {
		return fmt.Errorf("title max tokens must be positive: %d", c.LLM.TitleMaxTokens)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("negative requests per second: %v", c.LLM.RequestsPerSecond)
	}
	if c.LLM.MaxInputTokens < 0 {
		return fmt.Errorf("negative max input tokens: %d", c.LLM.MaxInputTokens)
	}

	if c.Prompts.Watch && c.Prompts.Dir == "" {
		return fmt.Errorf("prompt watching requires prompts.dir")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("sqlite storage requires a path")
		}
	default:
		return fmt.Errorf("invalid storage driver: %q", c.Storage.Driver)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive: %v", c.Auth.TokenTTL)
	}
	if (c.Auth.SeedAdminEmail == "") != (c.Auth.SeedAdminPassword == "") {
		return fmt.Errorf("seed admin requires both email and password")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}
	if c.CircuitBreaker.Timeout < 0 || c.CircuitBreaker.Interval < 0 {
		return fmt.Errorf("negative circuit breaker durations")
	}

	if c.Queue.Enabled {
		if c.Queue.MaxConcurrent <= 0 {
			return fmt.Errorf("queue max concurrent must be positive: %d", c.Queue.MaxConcurrent)
		}
		if c.Queue.MaxQueued < 0 {
			return fmt.Errorf("negative queue size: %d", c.Queue.MaxQueued)
		}
	}

	return nil
}
