package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Duration reads "3s"-style strings from TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds server configuration
type Config struct {
	SpecLocation   string   `toml:"spec_location"`
	APIBaseAddress string   `toml:"api_base_address"`
	APICredential  string   `toml:"api_credential"`
	TransportMode  string   `toml:"transport_mode"`
	Port           int      `toml:"port"`
	Endpoint       string   `toml:"endpoint"`
	AllowedOrigins []string `toml:"allowed_origins"`
	Validation     string   `toml:"validation"`
	DatabaseURL    string   `toml:"database_url"`

	Retry   RetryConfig   `toml:"retry"`
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	Chat    ChatConfig    `toml:"chat"`
}

// RetryConfig bounds spec fetching at startup.
type RetryConfig struct {
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

// SessionConfig selects the session store for HTTP mode.
type SessionConfig struct {
	Store     string   `toml:"store"`
	RedisURL  string   `toml:"redis_url"`
	TTL       Duration `toml:"ttl"`
	Heartbeat Duration `toml:"heartbeat"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ChatConfig configures the chat command's completion endpoint.
type ChatConfig struct {
	APIKey       string  `toml:"api_key"`
	BaseURL      string  `toml:"base_url"`
	Model        string  `toml:"model"`
	Temperature  float64 `toml:"temperature"`
	MaxTokens    int     `toml:"max_tokens"`
	TopP         float64 `toml:"top_p"`
	SystemPrompt string  `toml:"system_prompt"`
	JSONOutput   bool    `toml:"json_output"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		SpecLocation:   "http://localhost:8000/openapi.json",
		APIBaseAddress: "http://localhost:8000",
		TransportMode:  TransportStdio,
		Port:           3000,
		Endpoint:       "/mcp",
		Validation:     "lenient",
		Retry: RetryConfig{
			Attempts: 10,
			Delay:    Duration{3 * time.Second},
		},
		Session: SessionConfig{
			Store:     "memory",
			TTL:       Duration{30 * time.Minute},
			Heartbeat: Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Chat: ChatConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.7,
			MaxTokens:   2048,
			TopP:        1,
		},
	}
}

// LoadConfig applies, in order: defaults, the TOML file at path (if any), environment variables.
// Flags are applied afterwards with ApplyFlags.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("OPENAPI_SPEC_URL", &config.SpecLocation)
	setString("API_BASE_URL", &config.APIBaseAddress)
	setString("API_KEY", &config.APICredential)
	setString("TRANSPORT_MODE", &config.TransportMode)
	setString("VALIDATION_MODE", &config.Validation)
	setString("DATABASE_URL", &config.DatabaseURL)
	setString("SESSION_STORE", &config.Session.Store)
	setString("REDIS_URL", &config.Session.RedisURL)
	setString("LOG_LEVEL", &config.Log.Level)
	setString("LOG_FORMAT", &config.Log.Format)
	setString("GROQ_API_KEY", &config.Chat.APIKey)
	setString("CHAT_MODEL", &config.Chat.Model)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		config.Port = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		config.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SPEC_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SPEC_RETRY_ATTEMPTS %q: %w", v, err)
		}
		config.Retry.Attempts = n
	}
	return nil
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

// RegisterFlags adds the command-line overrides to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("spec", "", "OpenAPI document: URL, file path or db:<name>")
	flags.String("base-url", "", "base address of the target API")
	flags.String("api-key", "", "credential sent as the Authorization header")
	flags.String("transport", "", "transport mode: stdio or http")
	flags.Int("port", 0, "HTTP port")
	flags.String("endpoint", "", "MCP endpoint path in HTTP mode")
	flags.StringSlice("allowed-origins", nil, "browser origins allowed in HTTP mode")
	flags.String("validation", "", "argument validation: strict or lenient")
	flags.String("session-store", "", "session store: memory or redis")
	flags.String("redis-url", "", "redis:// URL for the redis session store")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: json or console")
}

// ApplyFlags overrides config with every flag that was set explicitly.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) {
	str := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	str("spec", &c.SpecLocation)
	str("base-url", &c.APIBaseAddress)
	str("api-key", &c.APICredential)
	str("transport", &c.TransportMode)
	str("endpoint", &c.Endpoint)
	str("validation", &c.Validation)
	str("session-store", &c.Session.Store)
	str("redis-url", &c.Session.RedisURL)
	str("log-level", &c.Log.Level)
	str("log-format", &c.Log.Format)

	if flags.Changed("port") {
		if port, err := flags.GetInt("port"); err == nil {
			c.Port = port
		}
	}
	if flags.Changed("allowed-origins") {
		if origins, err := flags.GetStringSlice("allowed-origins"); err == nil {
			c.AllowedOrigins = origins
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SpecLocation) == "" {
		return fmt.Errorf("spec_location is required")
	}
	if strings.TrimSpace(c.APIBaseAddress) == "" {
		return fmt.Errorf("api_base_address is required")
	}
	switch c.TransportMode {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport_mode %q (want %s or %s)", c.TransportMode, TransportStdio, TransportHTTP)
	}
	switch strings.ToLower(c.Validation) {
	case "", "strict", "lenient":
	default:
		return fmt.Errorf("unknown validation mode %q", c.Validation)
	}
	if c.TransportMode == TransportHTTP {
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
		if !strings.HasPrefix(c.Endpoint, "/") {
			return fmt.Errorf("endpoint must start with /: %q", c.Endpoint)
		}
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for the redis session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	if strings.HasPrefix(c.SpecLocation, "db:") && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for db: spec locations")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	return nil
}

// LogConfiguration logs the effective configuration with secrets masked.
func (c *Config) LogConfiguration(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("spec_location", c.SpecLocation),
		zap.String("api_base_address", c.APIBaseAddress),
		zap.Bool("credential_set", c.APICredential != ""),
		zap.String("transport_mode", c.TransportMode),
		zap.String("validation", c.Validation),
	}
	if c.TransportMode == TransportHTTP {
		fields = append(fields,
			zap.Int("port", c.Port),
			zap.String("endpoint", c.Endpoint),
			zap.Strings("allowed_origins", c.AllowedOrigins),
			zap.String("session_store", c.Session.Store))
	}
	if c.DatabaseURL != "" {
		fields = append(fields, zap.String("database_url", MaskSensitive(c.DatabaseURL)))
	}
	logger.Info("configuration loaded", fields...)
}
