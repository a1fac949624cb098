package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/logger"
	"golang.org/x/time/rate"
)

// maxErrorBodyChars bounds how much of a failed response body is kept in a RemoteError.
const maxErrorBodyChars = 512

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedMany embeds texts and returns vectors in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClient calls an OpenAI-compatible POST {base_url}/embeddings endpoint.
type EmbeddingClient struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
	batchSize  int
	retry      RetryPolicy
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewEmbeddingClient creates a client from a validated configuration.
// A configuration that fails validation yields a *ConfigError.
func NewEmbeddingClient(cfg *config.EmbeddingConfig) (*EmbeddingClient, error) {
	if cfg == nil {
		return nil, &ConfigError{Err: fmt.Errorf("embedding configuration is missing")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	retry := DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxAttempts
	if cfg.BaseDelay > 0 {
		retry.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		retry.MaxDelay = cfg.MaxDelay
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &EmbeddingClient{
		client:     client,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/embeddings",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retry:      retry,
		limiter:    limiter,
		sleep:      sleepContext,
	}, nil
}

// GetModel returns the model name being used
func (c *EmbeddingClient) GetModel() string {
	return c.model
}

// Dimensions returns the vector length every response is checked against.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedOne generates an embedding for a single text
func (c *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedMany generates embeddings for texts, splitting them into batches of at
// most the configured batch size. Output order follows input order.
func (c *EmbeddingClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// embedBatch sends one request, retrying transient statuses. The body is
// encoded once so every attempt sends the same bytes.
func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		httpResp, err := c.client.R().
			SetContext(ctx).
			SetBody(body).
			Post(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to call embedding API: %w", err)
		}

		if httpResp.IsSuccess() {
			var resp embeddingResponse
			if err := json.Unmarshal(httpResp.Body(), &resp); err != nil {
				return nil, fmt.Errorf("failed to decode embedding response: %w", err)
			}
			return c.collect(&resp, len(texts))
		}

		status := httpResp.StatusCode()
		remoteErr := &RemoteError{
			StatusCode: status,
			Body:       truncateText(strings.TrimSpace(httpResp.String()), maxErrorBodyChars),
			Transient:  c.retry.IsRetryable(status),
			Attempts:   attempt,
		}
		if !c.retry.ShouldRetry(status, attempt) {
			return nil, remoteErr
		}

		delay := c.retry.Delay(attempt)
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStatus: status,
			"attempt":          attempt,
			"max_attempts":     c.retry.MaxAttempts,
			"delay_ms":         delay.Milliseconds(),
			"batch":            len(texts),
		}).Warn("Embedding API call failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// collect orders the response by index and checks count and dimension.
func (c *EmbeddingClient) collect(resp *embeddingResponse, expected int) ([][]float32, error) {
	if len(resp.Data) != expected {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), expected)
	}

	embeddings := make([][]float32, expected)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= expected {
			return nil, fmt.Errorf("embedding index %d out of range [0, %d)", item.Index, expected)
		}
		if embeddings[item.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", item.Index)
		}
		if len(item.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(item.Embedding), c.dimensions)
		}
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}
