// Package config loads cadence settings from defaults, an optional file and
// CADENCE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CADENCE_QUEUE_SIZE.
const EnvPrefix = "CADENCE"

const (
	KeyMaxConcurrentTasks = "max_concurrent_tasks"
	KeyQueueSize          = "queue_size"
	KeySessionTTL         = "session_ttl"
	KeyToolTimeout        = "tool_timeout"
	KeyProtocols          = "protocols"
	KeyRedisAddr          = "redis.addr"
	KeyRedisPassword      = "redis.password"
	KeyRedisDB            = "redis.db"
	KeyRedisPrefix        = "redis.prefix"
	KeyRedisEncryptionKey = "redis.encryption_key"
	KeyRedisFallbackKeys  = "redis.fallback_keys"
	KeyRedisPIIPatterns   = "redis.pii_patterns"
	KeyLLMProvider        = "llm.provider"
	KeyLLMModel           = "llm.model"
	KeyLLMAPIKey          = "llm.api_key"
	KeyLLMBaseURL         = "llm.base_url"
	KeyLLMSystemPrompt    = "llm.system_prompt"
	KeyHTTPAddr           = "http.addr"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
)

// LLM providers.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	ErrInvalidConcurrency = errors.New("max_concurrent_tasks must be at least 1")
	ErrInvalidQueueSize   = errors.New("queue_size must be at least 1")
	ErrInvalidProvider    = errors.New("unknown llm provider")
)

// Config is the resolved configuration.
type Config struct {
	MaxConcurrentTasks int
	QueueSize          int
	SessionTTL         time.Duration
	ToolTimeout        time.Duration

	// Protocols lists definition files or directories loaded at startup.
	Protocols []string

	Redis RedisConfig
	LLM   LLMConfig

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// RedisConfig enables the Redis mirror and lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// EncryptionKey is a base64 AES-256 key. When set, session data is
	// encrypted before it reaches Redis.
	EncryptionKey string
	FallbackKeys  []string

	// PIIPatterns mask matching data keys before they reach Redis.
	PIIPatterns []string
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMaxConcurrentTasks, 4)
	v.SetDefault(KeyQueueSize, 64)
	v.SetDefault(KeySessionTTL, time.Duration(0))
	v.SetDefault(KeyToolTimeout, 30*time.Second)
	v.SetDefault(KeyProtocols, []string{})
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyRedisPrefix, "cadence:session:")
	v.SetDefault(KeyRedisEncryptionKey, "")
	v.SetDefault(KeyRedisFallbackKeys, []string{})
	v.SetDefault(KeyRedisPIIPatterns, []string{})
	v.SetDefault(KeyLLMProvider, ProviderNone)
	v.SetDefault(KeyLLMModel, "")
	v.SetDefault(KeyLLMAPIKey, "")
	v.SetDefault(KeyLLMBaseURL, "")
	v.SetDefault(KeyLLMSystemPrompt, "")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if not empty) into v and resolves the configuration.
// A nil v uses New().
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		MaxConcurrentTasks: v.GetInt(KeyMaxConcurrentTasks),
		QueueSize:          v.GetInt(KeyQueueSize),
		SessionTTL:         v.GetDuration(KeySessionTTL),
		ToolTimeout:        v.GetDuration(KeyToolTimeout),
		Protocols:          v.GetStringSlice(KeyProtocols),
		Redis: RedisConfig{
			Addr:     v.GetString(KeyRedisAddr),
			Password: v.GetString(KeyRedisPassword),
			DB:       v.GetInt(KeyRedisDB),
			Prefix:   v.GetString(KeyRedisPrefix),

			EncryptionKey: v.GetString(KeyRedisEncryptionKey),
			FallbackKeys:  v.GetStringSlice(KeyRedisFallbackKeys),
			PIIPatterns:   v.GetStringSlice(KeyRedisPIIPatterns),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(strings.TrimSpace(v.GetString(KeyLLMProvider))),
			Model:        v.GetString(KeyLLMModel),
			APIKey:       v.GetString(KeyLLMAPIKey),
			BaseURL:      v.GetString(KeyLLMBaseURL),
			SystemPrompt: v.GetString(KeyLLMSystemPrompt),
		},
		HTTPAddr:  v.GetString(KeyHTTPAddr),
		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderNone
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.MaxConcurrentTasks)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidQueueSize, c.QueueSize)
	}
	switch c.LLM.Provider {
	case ProviderNone, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.LLM.Provider)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must not be negative: %s", c.SessionTTL)
	}
	return nil
}
