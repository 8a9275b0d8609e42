package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/internal/resilience"
	"github.com/scrypster/alphalite/pkg/types"
)

// ErrRejected is returned when the remote service answers a request with a
// client error. It does not count against the circuit breaker.
var ErrRejected = errors.New("webhook rejected request")

// WebhookConfig configures a remote timer service.
type WebhookConfig struct {
	// URL is the service base URL; alerts live under {URL}/alerts/{id}.
	URL string

	// Timeout bounds each request. Default: 10s
	Timeout time.Duration

	// Client overrides the HTTP client. Optional.
	Client *http.Client

	Logger *slog.Logger
}

// Webhook arms alerts on a remote service with PUT /alerts/{id} and
// disarms them with DELETE /alerts/{id}. PUT replaces, so the service keeps
// one alert per ID. Calls go through a circuit breaker; while it is open the
// webhook reports itself unavailable.
type Webhook struct {
	base    string
	timeout time.Duration
	client  *http.Client
	breaker *resilience.Breaker
	logger  *slog.Logger
}

var _ reminder.Notifier = (*Webhook)(nil)

type webhookResponse struct {
	Handle string `json:"handle"`
}

// NewWebhook validates cfg and creates the binding.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, goerr.New("webhook URL must be an absolute http(s) URL", goerr.V("url", cfg.URL))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Webhook{
		base:    strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.Client,
		logger:  cfg.Logger,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:         "webhook-notifier",
			Logger:       cfg.Logger,
			IsSuccessful: func(err error) bool { return errors.Is(err, ErrRejected) },
		}),
	}, nil
}

// Schedule implements reminder.Notifier.
func (w *Webhook) Schedule(ctx context.Context, alert types.Alert) (string, error) {
	body, err := json.Marshal(alert)
	if err != nil {
		return "", goerr.Wrap(err, "webhook: failed to marshal alert")
	}

	result, err := w.execute(ctx, http.MethodPut, alert.ID, body)
	if err != nil {
		return "", err
	}

	handle := alert.ID
	if raw := bytes.TrimSpace(result); len(raw) > 0 {
		var resp webhookResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			w.logger.Warn("webhook: ignoring unreadable response body", "id", alert.ID, "error", err)
		} else if resp.Handle != "" {
			handle = resp.Handle
		}
	}
	return handle, nil
}

// Cancel implements reminder.Notifier. An alert the service does not know
// counts as cancelled.
func (w *Webhook) Cancel(ctx context.Context, id string) error {
	_, err := w.execute(ctx, http.MethodDelete, id, nil)
	return err
}

// Available reports whether the breaker lets calls through.
func (w *Webhook) Available() bool { return !w.breaker.Open() }

func (w *Webhook) execute(ctx context.Context, method, id string, body []byte) ([]byte, error) {
	result, err := w.breaker.Execute(ctx, func() (interface{}, error) {
		return w.do(ctx, method, id, body)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, goerr.Wrap(errors.Join(reminder.ErrNotifierUnavailable, err), "webhook: circuit breaker open")
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (w *Webhook) do(ctx context.Context, method, id string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.base+"/alerts/"+url.PathEscape(id), reader)
	if err != nil {
		return nil, goerr.Wrap(err, "webhook: failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, goerr.Wrap(errors.Join(reminder.ErrNotifierUnavailable, err), "webhook: failed to send request",
			goerr.V("method", method), goerr.V("id", id))
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return nil, goerr.Wrap(ErrRejected, "webhook: request rejected",
			goerr.V("method", method), goerr.V("id", id), goerr.V("status", resp.StatusCode), goerr.V("body", string(data)))
	default:
		return nil, goerr.Wrap(reminder.ErrNotifierUnavailable, "webhook: unexpected status",
			goerr.V("method", method), goerr.V("id", id), goerr.V("status", resp.StatusCode), goerr.V("body", string(data)))
	}
}
