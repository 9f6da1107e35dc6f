package config

import (
	"fmt"
	"time"
)

// ValidProviders lists all supported generation providers.
var ValidProviders = []string{"gemini", "template"}

// LLMConfig configures contract text generation.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini, template
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Timeout         string  `yaml:"timeout"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	MaxConcurrency  int     `yaml:"max_concurrency"` // sections generated in parallel
	MinRequestGap   string  `yaml:"min_request_gap"`
}

// GetMinRequestGap returns the minimum spacing between provider calls.
func (l LLMConfig) GetMinRequestGap() time.Duration {
	return parseDuration(l.MinRequestGap, 0)
}

func (l LLMConfig) validate() error {
	valid := false
	for _, p := range ValidProviders {
		if l.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", l.Provider, ValidProviders)
	}
	if l.Provider == "gemini" && l.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY, or use provider: template)")
	}
	if l.MaxConcurrency < 0 {
		return fmt.Errorf("llm.max_concurrency cannot be negative")
	}
	return nil
}
