package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	OpenAI      OpenAIConfig    `toml:"openai"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Retrieval   RetrievalConfig `toml:"retrieval"`
	Ingest      IngestConfig    `toml:"ingest"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`     // OpenAI API key (OPENAI_API_KEY or config)
	Model       string  `toml:"model"`       // Default model (default: "gpt-4o-mini")
	BaseURL     string  `toml:"base_url"`    // API base URL, overridable for tests
	Timeout     string  `toml:"timeout"`     // Request timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "1s")
	Temperature float64 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Gemini API key (GEMINI_API_KEY or config)
	Model       string  `toml:"model"`       // Default model (default: "gemini-2.5-flash")
	Timeout     string  `toml:"timeout"`     // Request timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "4s" for free tier)
	Temperature float64 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Default model (default: "claude-3-5-haiku-latest")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 2048)
	Timeout     string  `toml:"timeout"`     // Request timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "1s")
	Temperature float64 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMConfig contains gateway-level routing configuration
type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // "openai", "gemini" or "claude" (default: "openai")
	DefaultLanguage string `toml:"default_language"` // Response language when the request omits one (default: "english")
	MaxTokens       int    `toml:"max_tokens"`       // Default completion budget (default: 2048)
	HistoryLimit    int    `toml:"history_limit"`    // Turns returned by the history endpoint (default: 50)
}

// RetrievalConfig contains lexical retrieval tuning
type RetrievalConfig struct {
	TopK int `toml:"top_k"` // Passages per query (default: 4)
}

// IngestConfig contains PDF ingestion configuration
type IngestConfig struct {
	MaxUploadBytes int64  `toml:"max_upload_bytes"` // Upload size cap (default: 10 MiB)
	OCREnabled     bool   `toml:"ocr_enabled"`      // Allow the OCR re-extraction path (default: true)
	OCRMaxPages    int    `toml:"ocr_max_pages"`    // Pages rasterized per document (default: 5)
	Retention      string `toml:"retention"`        // Uploaded document lifetime, "0" disables the sweep
	SweepSchedule  string `toml:"sweep_schedule"`   // Cron schedule for the retention sweep
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in tutorbridge.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		OpenAI: OpenAIConfig{
			APIKey:      "", // User must provide API key (OPENAI_API_KEY or config)
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.5-flash",
			Timeout:     "2m",
			RateLimit:   "4s", // 15 RPM for free tier
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   2048,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			DefaultLanguage: "english",
			MaxTokens:       2048,
			HistoryLimit:    50,
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Ingest: IngestConfig{
			MaxUploadBytes: 10 * 1024 * 1024,
			OCREnabled:     true,
			OCRMaxPages:    5,
			Retention:      "0", // Keep uploads forever unless configured
			SweepSchedule:  "0 3 * * *",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TUTORBRIDGE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TUTORBRIDGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TUTORBRIDGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("TUTORBRIDGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("TUTORBRIDGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("TUTORBRIDGE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("TUTORBRIDGE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// OpenAI configuration
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("TUTORBRIDGE_OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey // TUTORBRIDGE_ prefix takes priority
	}
	if model := os.Getenv("TUTORBRIDGE_OPENAI_MODEL"); model != "" {
		config.OpenAI.Model = model
	}
	if baseURL := os.Getenv("TUTORBRIDGE_OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if rateLimit := os.Getenv("TUTORBRIDGE_OPENAI_RATE_LIMIT"); rateLimit != "" {
		config.OpenAI.RateLimit = rateLimit
	}

	// Gemini configuration
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("TUTORBRIDGE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("TUTORBRIDGE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if rateLimit := os.Getenv("TUTORBRIDGE_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("TUTORBRIDGE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("TUTORBRIDGE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("TUTORBRIDGE_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}

	// Gateway routing configuration
	if provider := os.Getenv("TUTORBRIDGE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = provider
	}
	if language := os.Getenv("TUTORBRIDGE_LLM_DEFAULT_LANGUAGE"); language != "" {
		config.LLM.DefaultLanguage = language
	}
	if maxTokens := os.Getenv("TUTORBRIDGE_LLM_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.LLM.MaxTokens = mt
		}
	}

	// Retrieval configuration
	if topK := os.Getenv("TUTORBRIDGE_RETRIEVAL_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil && k > 0 {
			config.Retrieval.TopK = k
		}
	}

	// Ingest configuration
	if maxUpload := os.Getenv("TUTORBRIDGE_INGEST_MAX_UPLOAD_BYTES"); maxUpload != "" {
		if mu, err := strconv.ParseInt(maxUpload, 10, 64); err == nil && mu > 0 {
			config.Ingest.MaxUploadBytes = mu
		}
	}
	if ocrEnabled := os.Getenv("TUTORBRIDGE_INGEST_OCR_ENABLED"); ocrEnabled != "" {
		if oe, err := strconv.ParseBool(ocrEnabled); err == nil {
			config.Ingest.OCREnabled = oe
		}
	}
	if maxPages := os.Getenv("TUTORBRIDGE_INGEST_OCR_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil && mp > 0 {
			config.Ingest.OCRMaxPages = mp
		}
	}
	if retention := os.Getenv("TUTORBRIDGE_INGEST_RETENTION"); retention != "" {
		config.Ingest.Retention = retention
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"openai_api_key":    {"TUTORBRIDGE_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"gemini_api_key":    {"TUTORBRIDGE_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"TUTORBRIDGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"TUTORBRIDGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// RetentionWindow parses the configured retention duration. Zero means disabled.
func (c *IngestConfig) RetentionWindow() time.Duration {
	raw := strings.TrimSpace(c.Retention)
	if raw == "" || raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
