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

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the embedding model (default: nomic-embed-text)
	Model string

	// Timeout is the request timeout (default: 10s)
	Timeout time.Duration
}

// Ollama implements Provider against a local Ollama server.
type Ollama struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
	breaker *resilience.Breaker
}

var _ Provider = (*Ollama)(nil)

// embedRequest represents the request body for /api/embed
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse represents the response from /api/embed. We always send a
// single input, so only the first embedding is used.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllama creates an Ollama client, applying defaults to zero fields.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Ollama{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("ollama"),
	}
}

// Embed generates an embedding vector for text.
func (c *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, goerr.Wrap(errors.Join(ErrOffline, err), "ollama: circuit breaker open")
		}
		return nil, err
	}
	return result.([]float64), nil
}

func (c *Ollama) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jsonData, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, goerr.Wrap(err, "ollama: failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("ollama", resp.StatusCode, body)
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, goerr.Wrap(errors.Join(ErrMalformed, err), "ollama: failed to decode response")
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, goerr.Wrap(ErrMalformed, "ollama: empty embedding vector")
	}
	return respData.Embeddings[0], nil
}

// HealthCheck verifies that Ollama is reachable via /api/version. It
// bypasses the breaker since it is a probe itself.
func (c *Ollama) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return goerr.Wrap(err, "ollama: failed to create health check request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return transportError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("ollama", resp.StatusCode, body)
	}
	return nil
}

// Available reports whether the breaker is closed. A local server has no
// credentials to check.
func (c *Ollama) Available() bool { return !c.breaker.Open() }

// Model returns the configured model name.
func (c *Ollama) Model() string { return c.model }
