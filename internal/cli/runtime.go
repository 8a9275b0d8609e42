package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/assistant"
	"github.com/scrypster/alphalite/internal/config"
	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notifier"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/reminder"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/internal/storage/memstore"
	"github.com/scrypster/alphalite/internal/storage/postgres"
	"github.com/scrypster/alphalite/internal/storage/sqlite"
)

// runtime is everything a command needs, opened from the configuration.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Store
	provider embedding.Provider
	secrets  embedding.SecretStore
	events   *notify.EventWriter
	// publisher receives change events; notifierFor may replace it.
	publisher notify.Publisher
	core      *assistant.Core
}

func (g *globals) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	logger := logging.New(cfg.Log.Level, os.Stderr)
	logging.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if !store.PgvectorAvailable() {
			logger.Debug("pgvector not installed; vectors kept as bytes only")
		}
		return store, nil
	case "memory":
		return memstore.New(), nil
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("path", cfg.Storage.DataPath))
		}
		store, err := sqlite.Open(cfg.DBPath(), sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func secretStore(cfg *config.Config) embedding.SecretStore {
	return embedding.ChainSecrets{embedding.EnvSecrets{}, embedding.NewFileSecrets(cfg.SecretsPath())}
}

// open builds the runtime. When notifierFor is nil the configured notifier
// for one-shot commands is used: the webhook if configured, otherwise an
// Outbox for the daemon.
func (g *globals) open(ctx context.Context, notifierFor func(*runtime) (reminder.Notifier, error)) (*runtime, error) {
	cfg, logger, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		secrets: secretStore(cfg),
		events:  notify.NewEventWriter(cfg.Storage.DataPath),
	}
	rt.publisher = rt.events

	if rt.provider, err = embedding.New(cfg.EmbeddingProvider(), rt.secrets); err != nil {
		return nil, err
	}
	if rt.store, err = openStore(ctx, cfg, logger); err != nil {
		rt.closeProvider()
		return nil, err
	}

	if notifierFor == nil {
		notifierFor = oneShotNotifier
	}
	n, err := notifierFor(rt)
	if err != nil {
		_ = rt.close()
		return nil, err
	}

	opts := []assistant.Option{
		assistant.WithLogger(logger),
		assistant.WithPublisher(rt.publisher),
		assistant.WithDefaultK(cfg.Retrieval.DefaultK),
	}
	if cfg.Embedding.Dimensions > 0 {
		opts = append(opts, assistant.WithDimension(cfg.Embedding.Dimensions))
	}
	if rt.core, err = assistant.New(ctx, rt.store, rt.provider, n, opts...); err != nil {
		_ = rt.close()
		return nil, err
	}
	return rt, nil
}

func oneShotNotifier(rt *runtime) (reminder.Notifier, error) {
	if rt.cfg.Notifier.Kind == "webhook" {
		return notifier.NewWebhook(notifier.WebhookConfig{URL: rt.cfg.Notifier.WebhookURL, Logger: rt.logger})
	}
	return notifier.NewOutbox(rt.events), nil
}

func (rt *runtime) closeProvider() {
	if c, ok := rt.provider.(interface{ Close() }); ok {
		c.Close()
	}
}

func (rt *runtime) close() error {
	rt.closeProvider()
	if rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

// with opens a runtime for one command and closes it afterwards.
func (g *globals) with(ctx context.Context, fn func(rt *runtime) error) (err error) {
	rt, err := g.open(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.close(); err == nil {
			err = closeErr
		}
	}()
	return fn(rt)
}
