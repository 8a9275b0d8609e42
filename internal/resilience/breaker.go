// Package resilience guards calls to external services (embedding APIs,
// remote notifiers) with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/alphalite/internal/logging"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that trip the
	// circuit. Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before letting a probe
	// through. Default: 30s
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of probe successes needed to close
	// the circuit again. Default: 2
	HalfOpenMaxSuccesses uint32

	// IsSuccessful marks errors that should not count against the remote
	// side, such as a response the caller could not parse. Optional.
	IsSuccessful func(err error) bool

	Logger *slog.Logger
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker wraps gobreaker for calls to an external service. While open it
// rejects calls immediately and Open reports true, which bindings surface
// as unavailability.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker, filling zero fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	logger := cfg.Logger

	return &Breaker{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenMaxSuccesses,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
			// A caller giving up says nothing about the remote side.
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				return cfg.IsSuccessful != nil && cfg.IsSuccessful(err)
			},
		}),
	}
}

// Execute runs fn through the breaker. When the circuit is open (or the
// half-open probe quota is used up) it returns ErrCircuitOpen without
// calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrCircuitOpen, err)
	}
	return result, err
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}
