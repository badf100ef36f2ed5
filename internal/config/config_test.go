package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Server.Environment)
	assert.Equal(t, ":8100", cfg.Server.Addr)
	assert.True(t, cfg.Server.AuditEnabled)
	assert.Equal(t, 20, cfg.Conversation.MemoryLimit)
	assert.Equal(t, 90, cfg.Conversation.RetentionDays)
	assert.Equal(t, DefaultSystemPrompt, cfg.Conversation.SystemPrompt)
	assert.Equal(t, ProviderRules, cfg.AI.Provider)
	assert.Equal(t, "https://api.elevenlabs.io/v1", cfg.Voice.BaseURL)
	assert.Equal(t, Window{Window: time.Minute, Max: 30}, cfg.RateLimit.Chat)
	assert.Equal(t, Window{Window: 15 * time.Minute, Max: 100}, cfg.RateLimit.API)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "Development")
	t.Setenv("CONVERSATION_MEMORY_LIMIT", "5")
	t.Setenv("CONVERSATION_RETENTION_DAYS", "30")
	t.Setenv("VOICE_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("VOICE_RATE_LIMIT_MAX", "3")
	t.Setenv("ELEVENLABS_BASE_URL", "http://localhost:9999/v1/")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1/32")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Server.Development())
	assert.Equal(t, 5, cfg.Conversation.MemoryLimit)
	assert.Equal(t, 30, cfg.Conversation.RetentionDays)
	assert.Equal(t, Window{Window: 30 * time.Second, Max: 3}, cfg.RateLimit.Voice)
	assert.Equal(t, "http://localhost:9999/v1", cfg.Voice.BaseURL)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32"}, cfg.Server.TrustedProxies)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_UnparsableFallsBackToDefault(t *testing.T) {
	t.Setenv("CONVERSATION_MEMORY_LIMIT", "twenty")
	t.Setenv("AI_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Conversation.MemoryLimit)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad env", "APP_ENV", "staging", "APP_ENV"},
		{"bad provider", "AI_PROVIDER", "magic", "AI_PROVIDER"},
		{"openai without credentials", "AI_PROVIDER", "openai", "OPENAI_API_KEY"},
		{"zero retention", "CONVERSATION_RETENTION_DAYS", "0", "CONVERSATION_RETENTION_DAYS"},
		{"zero chat max", "CHAT_RATE_LIMIT_MAX", "0", "CHAT_RATE_LIMIT"},
		{"idle above open", "DB_MAX_IDLE_CONNS", "50", "DB_MAX_IDLE_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
