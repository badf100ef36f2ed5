// Package config builds the process configuration from environment variables.
// Load is called once by the composition root; the resulting *Config is passed
// into every constructor and nothing else reads the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/realty-assistant/internal/version"
)

// DefaultSystemPrompt seeds every conversation context.
const DefaultSystemPrompt = "You are a helpful real estate assistant. You help clients find properties, " +
	"understand market conditions, schedule showings and connect with licensed agents. " +
	"Be accurate, professional and concise, and never give legal or financial advice."

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Conversation ConversationConfig
	AI           AIConfig
	Voice        VoiceConfig
	RateLimit    RateLimitConfig
	Redis        RedisConfig
	RealEstate   RealEstateConfig
}

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
	Environment     string
	Addr            string
	ServiceVersion  string
	ComplianceLevel string
	AuditEnabled    bool
	TrustedProxies  []string
	ShutdownTimeout time.Duration
}

// Development reports whether internal error details may be exposed.
func (s ServerConfig) Development() bool {
	return s.Environment == EnvDevelopment
}

// DatabaseConfig holds the connection pool settings.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeoutMS   int
}

// ConversationConfig bounds conversation memory and retention.
type ConversationConfig struct {
	MemoryLimit           int
	MaxConversationLength int
	RetentionDays         int
	MaxMessageLength      int
	SystemPrompt          string
}

// AIConfig selects the response generator.
type AIConfig struct {
	Provider      string // "rules" or "openai"
	Model         string
	Temperature   float64
	MaxTokens     int
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Timeout       time.Duration
}

// AI providers.
const (
	ProviderRules  = "rules"
	ProviderOpenAI = "openai"
)

// VoiceConfig configures the external text-to-speech API.
type VoiceConfig struct {
	APIKey         string
	BaseURL        string
	DefaultVoiceID string
	ModelID        string
	QualityPreset  string
	OutputFormat   string
	Timeout        time.Duration
	MaxTextLength  int
}

// Window is one rate limit window/max pair.
type Window struct {
	Window time.Duration
	Max    int
}

// RateLimitConfig holds the distinct windows for general, chat and voice traffic.
type RateLimitConfig struct {
	API   Window
	Chat  Window
	Voice Window
}

// RedisConfig is optional; when Addr is empty limiter state stays in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a shared Redis limiter store was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RealEstateConfig is static brokerage information echoed in stats.
type RealEstateConfig struct {
	LicenseNumber     string
	DefaultMarketArea string
	BrokerageName     string
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Environment:     strings.ToLower(stringOr("APP_ENV", EnvProduction)),
			Addr:            stringOr("HTTP_ADDR", ":8100"),
			ServiceVersion:  stringOr("SERVICE_VERSION", version.Version),
			ComplianceLevel: stringOr("COMPLIANCE_LEVEL", "standard"),
			AuditEnabled:    boolOr("AUDIT_ENABLED", true),
			TrustedProxies:  sliceOr("TRUSTED_PROXIES", nil),
			ShutdownTimeout: durationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Path:            stringOr("DATABASE_PATH", "assistant.db"),
			MaxOpenConns:    intOr("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    intOr("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: durationOr("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			BusyTimeoutMS:   intOr("DB_BUSY_TIMEOUT_MS", 5000),
		},
		Conversation: ConversationConfig{
			MemoryLimit:           intOr("CONVERSATION_MEMORY_LIMIT", 20),
			MaxConversationLength: intOr("MAX_CONVERSATION_LENGTH", 50),
			RetentionDays:         intOr("CONVERSATION_RETENTION_DAYS", 90),
			MaxMessageLength:      intOr("MAX_MESSAGE_LENGTH", 4000),
			SystemPrompt:          stringOr("SYSTEM_PROMPT", DefaultSystemPrompt),
		},
		AI: AIConfig{
			Provider:      strings.ToLower(stringOr("AI_PROVIDER", ProviderRules)),
			Model:         stringOr("AI_MODEL", "rule-based-v1"),
			Temperature:   floatOr("AI_TEMPERATURE", 0.7),
			MaxTokens:     intOr("AI_MAX_TOKENS", 500),
			OpenAIBaseURL: stringOr("OPENAI_BASE_URL", ""),
			OpenAIAPIKey:  stringOr("OPENAI_API_KEY", ""),
			Timeout:       durationOr("AI_TIMEOUT", 30*time.Second),
		},
		Voice: VoiceConfig{
			APIKey:         stringOr("ELEVENLABS_API_KEY", ""),
			BaseURL:        strings.TrimRight(stringOr("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"), "/"),
			DefaultVoiceID: stringOr("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			ModelID:        stringOr("ELEVENLABS_MODEL_ID", "eleven_monolingual_v1"),
			QualityPreset:  stringOr("VOICE_QUALITY_PRESET", "balanced"),
			OutputFormat:   stringOr("VOICE_OUTPUT_FORMAT", "mp3_44100_128"),
			Timeout:        durationOr("VOICE_TIMEOUT", 30*time.Second),
			MaxTextLength:  intOr("MAX_TTS_LENGTH", 5000),
		},
		RateLimit: RateLimitConfig{
			API:   Window{Window: durationOr("RATE_LIMIT_WINDOW", 15*time.Minute), Max: intOr("RATE_LIMIT_MAX", 100)},
			Chat:  Window{Window: durationOr("CHAT_RATE_LIMIT_WINDOW", time.Minute), Max: intOr("CHAT_RATE_LIMIT_MAX", 30)},
			Voice: Window{Window: durationOr("VOICE_RATE_LIMIT_WINDOW", time.Minute), Max: intOr("VOICE_RATE_LIMIT_MAX", 10)},
		},
		Redis: RedisConfig{
			Addr:     stringOr("REDIS_ADDR", ""),
			Password: stringOr("REDIS_PASSWORD", ""),
			DB:       intOr("REDIS_DB", 0),
		},
		RealEstate: RealEstateConfig{
			LicenseNumber:     stringOr("REALTOR_LICENSE_NUMBER", ""),
			DefaultMarketArea: stringOr("DEFAULT_MARKET_AREA", ""),
			BrokerageName:     stringOr("BROKERAGE_NAME", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of development, production, test; got %q", c.Server.Environment))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be at least 1"))
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS"))
	}
	if c.Conversation.MemoryLimit < 1 {
		errs = append(errs, errors.New("CONVERSATION_MEMORY_LIMIT must be positive"))
	}
	if c.Conversation.MaxConversationLength < 1 {
		errs = append(errs, errors.New("MAX_CONVERSATION_LENGTH must be positive"))
	}
	if c.Conversation.RetentionDays < 1 {
		errs = append(errs, errors.New("CONVERSATION_RETENTION_DAYS must be positive"))
	}
	if c.Conversation.MaxMessageLength < 1 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	switch c.AI.Provider {
	case ProviderRules:
	case ProviderOpenAI:
		if c.AI.OpenAIBaseURL == "" && c.AI.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("AI_PROVIDER=openai requires OPENAI_API_KEY or OPENAI_BASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be %q or %q; got %q", ProviderRules, ProviderOpenAI, c.AI.Provider))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, errors.New("AI_TEMPERATURE must be between 0 and 2"))
	}
	if c.Voice.BaseURL == "" {
		errs = append(errs, errors.New("ELEVENLABS_BASE_URL is required"))
	}
	if c.Voice.MaxTextLength < 1 {
		errs = append(errs, errors.New("MAX_TTS_LENGTH must be positive"))
	}
	for name, w := range map[string]Window{"RATE_LIMIT": c.RateLimit.API, "CHAT_RATE_LIMIT": c.RateLimit.Chat, "VOICE_RATE_LIMIT": c.RateLimit.Voice} {
		if w.Window <= 0 || w.Max < 1 {
			errs = append(errs, fmt.Errorf("%s_WINDOW and %s_MAX must be positive", name, name))
		}
	}

	return errors.Join(errs...)
}
