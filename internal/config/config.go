package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is unset.
const DefaultPath = ".vowpact/config.yaml"

// Config holds all vowpact configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	PDF       PDFConfig       `yaml:"pdf"`
	Signature SignatureConfig `yaml:"signature"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	BaseURL         string `yaml:"base_url"` // used to build client share links
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vowpact",
		Version: "0.3.0",

		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			BaseURL:         "http://127.0.0.1:8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "90s",
			ShutdownTimeout: "10s",
			MaxBodyBytes:    4 << 20,
		},

		Storage: StorageConfig{
			Driver:  "json",
			DataDir: ".vowpact/data",
			Watch:   true,
		},

		Auth: AuthConfig{
			CookieName:   "vowpact_session",
			SessionTTL:   "168h",
			SecureCookie: false,
			DemoUser: DemoUserConfig{
				Enabled:      true,
				Email:        "demo@vowpact.local",
				Password:     "demo",
				Name:         "Demo Vendor",
				BusinessName: "Golden Hour Photography",
				VendorType:   "photographer",
			},
		},

		LLM: LLMConfig{
			Provider:        "template",
			Model:           "gemini-2.5-flash",
			Timeout:         "60s",
			Temperature:     0.4,
			MaxOutputTokens: 2048,
			MaxConcurrency:  3,
			MinRequestGap:   "250ms",
		},

		PDF: PDFConfig{
			Headless: true,
			Timeout:  "45s",
			Paper:    "letter",
		},

		Signature: SignatureConfig{
			MaxBytes:    512 << 10,
			MinWidth:    120,
			MinHeight:   40,
			MaxWidth:    4000,
			MaxHeight:   2000,
			MinInkRatio: 0.002,
		},

		Logging: LoggingConfig{
			Level:      "info",
			DebugMode:  false,
			JSONFormat: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// GEMINI_API_KEY wins over GOOGLE_API_KEY, matching the genai SDK.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if addr := os.Getenv("VOWPACT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv("VOWPACT_BASE_URL"); url != "" {
		c.Server.BaseURL = url
	}
	if dir := os.Getenv("VOWPACT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if driver := os.Getenv("VOWPACT_STORAGE"); driver != "" {
		c.Storage.Driver = driver
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		c.PDF.ChromeBin = bin
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if c.GetSessionTTL() <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if err := c.Signature.validate(); err != nil {
		return err
	}
	return nil
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 90*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetSessionTTL returns the session lifetime as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Auth.SessionTTL, 168*time.Hour)
}

// GetLLMTimeout returns the per-request generation timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetPDFTimeout returns the PDF rendering timeout.
func (c *Config) GetPDFTimeout() time.Duration {
	return parseDuration(c.PDF.Timeout, 45*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
