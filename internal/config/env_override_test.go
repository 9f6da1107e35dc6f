package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GOOGLE_API_KEY selects gemini", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google-key")

		cfg := &Config{LLM: LLMConfig{Provider: "template"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "google-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("Precedence: GEMINI overrides GOOGLE", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google-key")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("no key keeps configured provider", func(t *testing.T) {
		clearEnv(t)

		cfg := &Config{LLM: LLMConfig{Provider: "template"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "template", cfg.LLM.Provider)
		assert.Empty(t, cfg.LLM.APIKey)
	})
}

func TestEnvOverrides_ServerAndStorage(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOWPACT_ADDR", ":7777")
	t.Setenv("VOWPACT_BASE_URL", "https://contracts.example.com")
	t.Setenv("VOWPACT_DATA_DIR", "/var/lib/vowpact")
	t.Setenv("VOWPACT_STORAGE", "sqlite")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "https://contracts.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "/var/lib/vowpact", cfg.Storage.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/usr/bin/chromium", cfg.PDF.ChromeBin)
}
