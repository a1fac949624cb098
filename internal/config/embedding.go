package config

import (
	"fmt"
	"time"
)

const (
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingBaseURL    = "https://api.openai.com/v1"
	DefaultEmbeddingDimensions = 1536
)

// EmbeddingConfig configures the remote batch embedding API.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`   // only "openai-compatible" is supported
	Model      string `mapstructure:"model"`      // model identifier sent with every request
	APIKey     string `mapstructure:"api_key"`    // bearer credential, required
	BaseURL    string `mapstructure:"base_url"`   // base URL; "/embeddings" is appended
	Dimensions int    `mapstructure:"dimensions"` // expected vector length

	BatchSize         int           `mapstructure:"batch_size"`          // inputs per remote call
	MaxAttempts       int           `mapstructure:"max_attempts"`        // attempts per remote call, including the first
	BaseDelay         time.Duration `mapstructure:"base_delay"`          // first backoff delay, doubled per attempt
	MaxDelay          time.Duration `mapstructure:"max_delay"`           // backoff cap
	Timeout           time.Duration `mapstructure:"timeout"`             // per-request HTTP timeout
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables client-side rate limiting
}

// Validate checks that the embedding configuration has everything needed to make
// remote calls. It is meant to run once at startup.
func (c *EmbeddingConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("embedding: api_key is required (set EMBEDDING_API_KEY or OPENAI_API_KEY)")
	}
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("embedding: base_url is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Model)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedding %q: batch_size must be positive", c.Model)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("embedding %q: max_attempts must be positive", c.Model)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding %q: requests_per_second must not be negative", c.Model)
	}

	switch c.Provider {
	case "", "openai-compatible":
	default:
		return fmt.Errorf("embedding %q: unknown provider %q", c.Model, c.Provider)
	}

	return nil
}
