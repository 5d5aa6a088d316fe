package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	PolygonConfig    PolygonConfig    `json:"polygon"`
	ExaConfig        ExaConfig        `json:"exa"`
	OpenRouterConfig OpenRouterConfig `json:"openrouter"`
	SignalsConfig    SignalsConfig    `json:"signals"`
	LoggingConfig    LoggingConfig    `json:"logging"`
	VaultConfig      VaultConfig      `json:"vault"`
	RedisConfig      RedisConfig      `json:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// PolygonConfig holds Polygon.io market data configuration
type PolygonConfig struct {
	APIKey       string        `json:"api_key"`
	BaseURL      string        `json:"base_url"`
	CacheTTL     time.Duration `json:"cache_ttl"`
	RequestDelay time.Duration `json:"request_delay"` // Spacing between basket calls
	CallTimeout  time.Duration `json:"call_timeout"`
}

// ExaConfig holds Exa news search configuration
type ExaConfig struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	CacheTTL    time.Duration `json:"cache_ttl"`
	CallTimeout time.Duration `json:"call_timeout"`
}

// OpenRouterConfig holds LLM provider configuration
type OpenRouterConfig struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// SignalsConfig holds watchlist signal feed configuration
type SignalsConfig struct {
	Watchlist    []string      `json:"watchlist"`
	CacheTTL     time.Duration `json:"cache_ttl"`
	RequestDelay time.Duration `json:"request_delay"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for provider keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the shared signals cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.TLSEnabled = getEnvOrDefault("SERVER_TLS_ENABLED", "false") == "true"
	cfg.ServerConfig.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", "")
	cfg.ServerConfig.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", "")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 15)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 60)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Polygon config
	cfg.PolygonConfig.APIKey = getEnvOrDefault("POLYGON_API_KEY", cfg.PolygonConfig.APIKey)
	cfg.PolygonConfig.BaseURL = getEnvOrDefault("POLYGON_BASE_URL", "https://api.polygon.io")
	cfg.PolygonConfig.CacheTTL = getEnvDurationOrDefault("POLYGON_CACHE_TTL", 3*time.Minute)
	cfg.PolygonConfig.RequestDelay = getEnvDurationOrDefault("POLYGON_REQUEST_DELAY", 250*time.Millisecond)
	cfg.PolygonConfig.CallTimeout = getEnvDurationOrDefault("POLYGON_CALL_TIMEOUT", 8*time.Second)

	// Exa config
	cfg.ExaConfig.APIKey = getEnvOrDefault("EXA_API_KEY", cfg.ExaConfig.APIKey)
	cfg.ExaConfig.BaseURL = getEnvOrDefault("EXA_BASE_URL", "https://api.exa.ai")
	cfg.ExaConfig.CacheTTL = getEnvDurationOrDefault("EXA_CACHE_TTL", 5*time.Minute)
	cfg.ExaConfig.CallTimeout = getEnvDurationOrDefault("EXA_CALL_TIMEOUT", 10*time.Second)

	// OpenRouter config
	cfg.OpenRouterConfig.APIKey = getEnvOrDefault("OPENROUTER_API_KEY", cfg.OpenRouterConfig.APIKey)
	cfg.OpenRouterConfig.BaseURL = getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	cfg.OpenRouterConfig.Model = getEnvOrDefault("OPENROUTER_MODEL", "google/gemini-2.0-flash-001")
	cfg.OpenRouterConfig.MaxTokens = getEnvIntOrDefault("OPENROUTER_MAX_TOKENS", 1000)
	cfg.OpenRouterConfig.Temperature = getEnvFloatOrDefault("OPENROUTER_TEMPERATURE", 0.3)
	cfg.OpenRouterConfig.Timeout = getEnvDurationOrDefault("OPENROUTER_TIMEOUT", 30*time.Second)

	// Signals config
	cfg.SignalsConfig.Watchlist = getEnvListOrDefault("SIGNALS_WATCHLIST", []string{"AAPL", "TSLA", "NVDA", "MSFT"})
	cfg.SignalsConfig.CacheTTL = getEnvDurationOrDefault("SIGNALS_CACHE_TTL", 3*time.Minute)
	cfg.SignalsConfig.RequestDelay = getEnvDurationOrDefault("SIGNALS_REQUEST_DELAY", 200*time.Millisecond)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "quantgens/provider-keys")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     15,
			WriteTimeout:    60,
			ShutdownTimeout: 10,
		},
		PolygonConfig: PolygonConfig{
			APIKey:       "your_polygon_key_here",
			BaseURL:      "https://api.polygon.io",
			CacheTTL:     3 * time.Minute,
			RequestDelay: 250 * time.Millisecond,
			CallTimeout:  8 * time.Second,
		},
		ExaConfig: ExaConfig{
			APIKey:      "your_exa_key_here",
			BaseURL:     "https://api.exa.ai",
			CacheTTL:    5 * time.Minute,
			CallTimeout: 10 * time.Second,
		},
		OpenRouterConfig: OpenRouterConfig{
			APIKey:      "your_openrouter_key_here",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "google/gemini-2.0-flash-001",
			MaxTokens:   1000,
			Temperature: 0.3,
			Timeout:     30 * time.Second,
		},
		SignalsConfig: SignalsConfig{
			Watchlist:    []string{"AAPL", "TSLA", "NVDA", "MSFT"},
			CacheTTL:     3 * time.Minute,
			RequestDelay: 200 * time.Millisecond,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
