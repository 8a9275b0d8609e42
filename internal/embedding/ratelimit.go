package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// RateLimited refuses calls above a token-bucket rate with ErrRateLimited
// instead of queueing them, so an interactive caller never waits on quota.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited allows perSecond calls on average with bursts of burst.
func NewRateLimited(next Provider, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float64, error) {
	if !r.limiter.Allow() {
		return nil, goerr.Wrap(ErrRateLimited, "local embedding quota exhausted", goerr.V("model", r.next.Model()))
	}
	return r.next.Embed(ctx, text)
}

func (r *RateLimited) Available() bool { return r.next.Available() }

func (r *RateLimited) Model() string { return r.next.Model() }
