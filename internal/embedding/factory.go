package embedding

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Config selects and tunes a provider chain.
type Config struct {
	Provider   string // openai, ollama or hash
	Model      string
	BaseURL    string
	Dimensions int // hash provider only
	Timeout    time.Duration

	// RatePerSecond limits calls; zero disables the limiter.
	RatePerSecond float64
	Burst         int

	// CacheBytes sizes the embedding cache; zero disables caching.
	CacheBytes int64
}

// New builds the configured provider wrapped in the rate limiter and cache.
func New(cfg Config, secrets SecretStore) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "openai", "":
		p = NewOpenAI(OpenAIConfig{Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Secrets: secrets})
	case "ollama":
		p = NewOllama(OllamaConfig{Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	case "hash":
		p = NewHash(cfg.Dimensions)
	default:
		return nil, goerr.New("unsupported embedding provider", goerr.V("provider", cfg.Provider))
	}

	if cfg.RatePerSecond > 0 {
		p = NewRateLimited(p, cfg.RatePerSecond, cfg.Burst)
	}
	if cfg.CacheBytes > 0 {
		cached, err := NewCached(p, cfg.CacheBytes)
		if err != nil {
			return nil, err
		}
		p = cached
	}
	return p, nil
}
