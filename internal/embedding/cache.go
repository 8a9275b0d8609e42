package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// Cached memoizes embeddings by model and text. Repeated queries (the same
// utterance retried, the same memory searched twice) skip the provider.
type Cached struct {
	next  Provider
	cache *ristretto.Cache
}

var _ Provider = (*Cached)(nil)

// NewCached wraps next with a cache bounded to roughly maxBytes of vectors.
func NewCached(next Provider, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxBytes / 100,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.next.Model() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return append([]float64(nil), v.([]float64)...), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]float64(nil), vec...), int64(len(vec)*8))
	return vec, nil
}

func (c *Cached) Available() bool { return c.next.Available() }

func (c *Cached) Model() string { return c.next.Model() }

// Close stops the cache's background goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}
