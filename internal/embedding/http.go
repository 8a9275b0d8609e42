package embedding

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/resilience"
)

func newBreaker(name string) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:   name,
		Logger: logging.Default(),
		// A garbled answer means the service is up.
		IsSuccessful: func(err error) bool { return errors.Is(err, ErrMalformed) },
	})
}

// transportError classifies a failed round trip. Cancellation by the caller
// is passed through; anything else means the service is unreachable.
func transportError(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return goerr.Wrap(errors.Join(ErrOffline, err), service+": failed to send request")
}

func statusError(service string, status int, body []byte) error {
	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500:
		kind = ErrOffline
	default:
		kind = ErrMalformed
	}
	return goerr.Wrap(kind, service+": unexpected status",
		goerr.V("status", status), goerr.V("body", string(body)))
}
