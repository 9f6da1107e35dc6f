package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/logging"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultTimeout     = 60 * time.Second
)

// GeminiClient implements LLMClient for the Gemini API.
type GeminiClient struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	timeout         time.Duration
	minGap          time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a client from cfg. An API key is required.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := defaultTimeout
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		timeout = d
	}
	return &GeminiClient{
		client:          client,
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         timeout,
		minGap:          cfg.GetMinRequestGap(),
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	logging.GenerateDebug("[Gemini] model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(systemPrompt) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if c.temperature > 0 {
		cfg.Temperature = genai.Ptr(c.temperature)
	}
	if c.maxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.maxOutputTokens
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		logging.GenerateError("[Gemini] request failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	logging.GenerateDebug("[Gemini] completed in %v (%d chars)", time.Since(start), len(text))
	return text, nil
}

// wait enforces the minimum gap between requests.
func (c *GeminiClient) wait(ctx context.Context) error {
	if c.minGap <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < c.minGap {
		t := time.NewTimer(c.minGap - elapsed)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.lastRequest = time.Now()
	return nil
}
