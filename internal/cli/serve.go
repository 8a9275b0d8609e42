package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/scrypster/alphalite/internal/backup"
	"github.com/scrypster/alphalite/internal/notifier"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/pkg/types"
)

const shutdownTimeout = 5 * time.Second

func serveCommand(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the reminder daemon and the websocket alert feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Address to listen on (overrides the config)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := g.startDaemon(ctx, c.String("listen"))
			if err != nil {
				return err
			}
			d.rt.logger.Info("alphalite daemon listening", "addr", d.Addr())
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return d.stop(shutdownCtx)
		},
	}
}

// daemon owns the long-lived pieces: the trigger mechanism, the websocket
// hub, the event watcher that follows changes made by other processes and
// the optional backup loop.
type daemon struct {
	rt       *runtime
	bus      *notify.Bus
	hub      *notifier.Hub
	timer    *notifier.Timer
	watcher  *notify.EventWatcher
	backups  *backup.Service
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (g *globals) startDaemon(ctx context.Context, listen string) (*daemon, error) {
	d := &daemon{}
	d.ctx, d.cancel = context.WithCancel(ctx)

	rt, err := g.open(d.ctx, d.triggers)
	if err != nil {
		d.cancel()
		return nil, err
	}
	d.rt = rt

	if err := d.start(listen); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return nil, errors.Join(err, d.stop(stopCtx))
	}
	return d, nil
}

// triggers builds the daemon's trigger mechanism. Change events stay
// in-process: writing them to the events directory would feed them back
// through the watcher.
func (d *daemon) triggers(rt *runtime) (reminder.Notifier, error) {
	d.bus = notify.NewBus(rt.logger)
	rt.publisher = d.bus
	d.hub = notifier.NewHub(rt.logger, rt.cfg.Notifier.AllowedOrigins...)

	if rt.cfg.Notifier.Kind == "webhook" {
		return notifier.NewWebhook(notifier.WebhookConfig{URL: rt.cfg.Notifier.WebhookURL, Logger: rt.logger})
	}
	d.timer = notifier.NewTimer(notifier.Sinks{notifier.LogSink{Logger: rt.logger}, d.hub}, rt.logger)
	return d.timer, nil
}

func (d *daemon) start(listen string) error {
	rt := d.rt
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.hub.Run()
	}()

	restored, err := rt.core.RestoreReminders(d.ctx)
	if err != nil {
		rt.logger.Warn("some reminders could not be re-armed", "error", err)
	}
	rt.logger.Info("reminders restored", "count", restored)

	d.watcher = notify.NewEventWatcher(rt.cfg.Storage.DataPath, rt.logger, d.follow)
	if err := d.watcher.Start(); err != nil {
		return err
	}

	if rt.cfg.Backup.Enabled && rt.cfg.Storage.Engine == "sqlite" {
		bc := rt.cfg.BackupService()
		bc.Logger = rt.logger
		if d.backups, err = backup.NewService(bc); err != nil {
			return err
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.backups.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Error("backup loop stopped", "error", err)
			}
		}()
	}

	if listen == "" {
		listen = rt.cfg.Notifier.Listen
	}
	if d.listener, err = net.Listen("tcp", listen); err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.V("addr", listen))
	}
	d.server = &http.Server{
		Handler:           securityHeaders(d.routes()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(d.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// follow applies a reminder change made by another process to the trigger
// mechanism.
func (d *daemon) follow(evt notify.Event) {
	if evt.Kind != types.KindReminder {
		return
	}
	if err := d.rt.core.SyncReminder(d.ctx, evt.ID); err != nil {
		d.rt.logger.Warn("failed to sync reminder", "id", evt.ID, "error", err)
	}
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", d.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":  "ok",
			"clients": d.hub.Clients(),
		}
		if d.timer != nil {
			status["pending"] = d.timer.Pending()
		}
		if d.backups != nil {
			if h, err := d.backups.Health(); err == nil {
				status["backup"] = h
			}
		}
		writeJSON(w, http.StatusOK, status)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		s, err := d.rt.core.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
	return mux
}

// Addr is the address the daemon listens on.
func (d *daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *daemon) stop(ctx context.Context) error {
	var errs []error
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, goerr.Wrap(err, "server shutdown"))
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.hub != nil {
		d.hub.Stop()
	}
	d.cancel()
	d.wg.Wait()
	if d.rt != nil {
		if err := d.rt.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
