package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/resilience"
)

// OpenAIConfig holds configuration for the OpenAI embedding client.
type OpenAIConfig struct {
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 30s

	// Secrets supplies SecretOpenAIAPIKey. Default: EnvSecrets.
	Secrets SecretStore
}

// OpenAI implements Provider using the OpenAI embeddings API.
type OpenAI struct {
	cfg     OpenAIConfig
	client  *http.Client
	breaker *resilience.Breaker
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedding client.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Secrets == nil {
		cfg.Secrets = EnvSecrets{}
	}
	return &OpenAI{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("openai"),
	}
}

// openAIEmbeddingRequest is the request body for POST /v1/embeddings.
type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// openAIEmbeddingResponse is the response body from POST /v1/embeddings.
type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding vector for text.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	apiKey, err := c.cfg.Secrets.Secret(SecretOpenAIAPIKey)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(ErrOffline, err), "openai: no API key")
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, apiKey, text)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, goerr.Wrap(errors.Join(ErrOffline, err), "openai: circuit breaker open")
		}
		return nil, err
	}
	return result.([]float64), nil
}

func (c *OpenAI) embed(ctx context.Context, apiKey, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(openAIEmbeddingRequest{Model: c.cfg.Model, Input: text})
	if err != nil {
		return nil, goerr.Wrap(err, "openai: failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, goerr.Wrap(err, "openai: failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError("openai", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("openai", resp.StatusCode, body)
	}

	var respData openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, goerr.Wrap(errors.Join(ErrMalformed, err), "openai: failed to decode response")
	}
	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, goerr.Wrap(ErrMalformed, "openai: empty embedding")
	}
	return respData.Data[0].Embedding, nil
}

// Available reports whether an API key is configured and the breaker is
// closed.
func (c *OpenAI) Available() bool {
	if c.breaker.Open() {
		return false
	}
	_, err := c.cfg.Secrets.Secret(SecretOpenAIAPIKey)
	return err == nil
}

// Model returns the configured model name.
func (c *OpenAI) Model() string { return c.cfg.Model }
