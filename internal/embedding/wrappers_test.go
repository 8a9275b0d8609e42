package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float64, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []float64{float64(len(text)), 1}, nil
}

func (p *countingProvider) Available() bool { return true }
func (p *countingProvider) Model() string   { return "counting" }

func TestCachedReusesVectors(t *testing.T) {
	next := &countingProvider{}
	c, err := NewCached(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	c.cache.Wait()

	second, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())

	// Callers own the returned slice.
	second[0] = 99
	third, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 5.0, third[0])

	_, err = c.Embed(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := &countingProvider{err: ErrOffline}
	c, err := NewCached(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 2; i++ {
		_, err := c.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrOffline)
	}
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestRateLimitedFailsFast(t *testing.T) {
	next := &countingProvider{}
	r := NewRateLimited(next, 0.001, 2)

	ctx := context.Background()
	_, err := r.Embed(ctx, "a")
	require.NoError(t, err)
	_, err = r.Embed(ctx, "b")
	require.NoError(t, err)
	_, err = r.Embed(ctx, "c")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, "counting", r.Model())
}

func TestHashProvider(t *testing.T) {
	h := NewHash(512)
	ctx := context.Background()

	a, err := h.Embed(ctx, "I love pizza")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "i LOVE pizza!")
	require.NoError(t, err)
	assert.Len(t, a, 512)
	assert.InDeltaSlice(t, a, b, 1e-12, "case and punctuation are ignored")

	c, err := h.Embed(ctx, "tomorrow rain forecast")
	require.NoError(t, err)
	d, err := h.Embed(ctx, "pizza tonight")
	require.NoError(t, err)
	assert.Greater(t, dot(a, d), dot(a, c), "shared words score higher")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.Embed(cancelled, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFactory(t *testing.T) {
	p, err := New(Config{Provider: "hash", Dimensions: 8, RatePerSecond: 10, Burst: 5, CacheBytes: 1 << 16}, nil)
	require.NoError(t, err)
	cached, ok := p.(*Cached)
	require.True(t, ok)
	defer cached.Close()
	_, ok = cached.next.(*RateLimited)
	assert.True(t, ok)
	assert.Equal(t, "hash", p.Model())

	p, err = New(Config{Provider: "ollama", Model: "mxbai-embed-large"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", p.Model())

	p, err = New(Config{}, EnvSecrets{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	_, err = New(Config{Provider: "anthropic"}, nil)
	assert.Error(t, err)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
