// Package notifier contains the bindings that turn scheduled reminders into
// alerts: an in-process Timer feeding a Sink (such as the websocket Hub), a
// remote Webhook service and an Outbox for short-lived processes.
package notifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scrypster/alphalite/pkg/types"
)

// ErrStopped is returned by bindings that have been shut down.
var ErrStopped = errors.New("notifier stopped")

// Sink receives alerts when they fall due.
type Sink interface {
	Deliver(ctx context.Context, alert types.Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, alert types.Alert) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, alert types.Alert) error { return f(ctx, alert) }

// Sinks delivers to every sink in order and joins their errors.
type Sinks []Sink

// Deliver implements Sink.
func (s Sinks) Deliver(ctx context.Context, alert types.Alert) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Deliver(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes due alerts to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(ctx context.Context, alert types.Alert) error {
	level := slog.LevelInfo
	if alert.Critical {
		level = slog.LevelWarn
	}
	s.Logger.Log(ctx, level, alert.Title, "id", alert.ID, "body", alert.Body, "critical", alert.Critical)
	return nil
}
