// Package memory owns the user's memories: sentences stored with their
// embeddings and retrieved by cosine similarity.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/notify"
	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// ErrInvalidK is returned by FindSimilar for a non-positive k.
var ErrInvalidK = errors.New("k must be positive")

// Index is the semantic memory index. Retrieval is a linear scan over all
// stored memories.
type Index struct {
	store     storage.Store
	provider  embedding.Provider
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	dimension int
	fatal     error
}

// Option configures an Index.
type Option func(*Index)

// WithDimension fixes the expected embedding length. Without it the length
// is learned from the first embedding and pinned in the store.
func WithDimension(n int) Option {
	return func(ix *Index) { ix.dimension = n }
}

// WithPublisher sets where memory_created / memory_deleted events go.
func WithPublisher(p notify.Publisher) Option {
	return func(ix *Index) { ix.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) { ix.logger = logger }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(ix *Index) { ix.newID = newID }
}

// NewIndex creates an index over store. It reconciles the configured
// dimension with the one pinned in the store and with the stored vectors;
// any disagreement is embedding.ErrDimensionMismatch.
func NewIndex(ctx context.Context, store storage.Store, provider embedding.Provider, opts ...Option) (*Index, error) {
	ix := &Index{
		store:     store,
		provider:  provider,
		publisher: notify.Nop{},
		logger:    logging.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.publisher == nil {
		ix.publisher = notify.Nop{}
	}

	pinned, err := ix.pinnedDimension(ctx)
	if err != nil {
		return nil, err
	}

	first, err := store.Memories().List(ctx, storage.ListOptions[types.Memory]{Limit: 1})
	if err != nil {
		return nil, err
	}

	switch {
	case pinned == 0 && ix.dimension == 0:
		// Older stores may hold memories without a pin; adopt their length.
		if len(first) > 0 {
			if err := ix.pin(ctx, len(first[0].Embedding)); err != nil {
				return nil, err
			}
		}
	case pinned == 0:
		if err := ix.pin(ctx, ix.dimension); err != nil {
			return nil, err
		}
	case ix.dimension == 0:
		ix.dimension = pinned
	case ix.dimension != pinned:
		return nil, goerr.Wrap(embedding.ErrDimensionMismatch, "configured dimension differs from stored dimension",
			goerr.V("configured", ix.dimension), goerr.V("stored", pinned))
	}

	if len(first) > 0 && len(first[0].Embedding) != ix.dimension {
		return nil, goerr.Wrap(embedding.ErrDimensionMismatch, "stored memories have a different dimension",
			goerr.V("expected", ix.dimension), goerr.V("stored", len(first[0].Embedding)))
	}

	if model, err := store.GetSetting(ctx, storage.SettingEmbeddingModel); err == nil && model != provider.Model() {
		ix.logger.Warn("memory: embedding model changed; similarity against older memories may be meaningless",
			"stored", model, "configured", provider.Model())
	}
	return ix, nil
}

func (ix *Index) pinnedDimension(ctx context.Context) (int, error) {
	v, err := ix.store.GetSetting(ctx, storage.SettingEmbeddingDimension)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, goerr.Wrap(embedding.ErrDimensionMismatch, "stored embedding dimension is corrupt", goerr.V("value", v))
	}
	return n, nil
}

// pin records n as the dimension. Callers hold mu or are the constructor.
func (ix *Index) pin(ctx context.Context, n int) error {
	if err := ix.store.SetSetting(ctx, storage.SettingEmbeddingDimension, strconv.Itoa(n)); err != nil {
		return err
	}
	if err := ix.store.SetSetting(ctx, storage.SettingEmbeddingModel, ix.provider.Model()); err != nil {
		return err
	}
	ix.dimension = n
	return nil
}

// checkVector enforces the pinned dimension. The first mismatch is
// remembered and every later call fails with it.
func (ix *Index) checkVector(ctx context.Context, vec []float64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.fatal != nil {
		return ix.fatal
	}
	if ix.dimension == 0 {
		return ix.pin(ctx, len(vec))
	}
	if len(vec) != ix.dimension {
		ix.fatal = goerr.Wrap(embedding.ErrDimensionMismatch, "provider changed embedding dimension",
			goerr.V("expected", ix.dimension), goerr.V("got", len(vec)), goerr.V("model", ix.provider.Model()))
		ix.logger.Error("memory: embedding dimension changed; index disabled", "error", ix.fatal)
		return ix.fatal
	}
	return nil
}

func (ix *Index) failed() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.fatal
}

// Dimension returns the pinned embedding length, or 0 before the first
// embedding.
func (ix *Index) Dimension() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dimension
}

// AddMemory embeds sentence and stores it. It fails fast with
// embedding.ErrOffline when the provider is unavailable and surfaces any
// embedding error; a memory is never stored without its vector. Once the
// vector is in hand the write completes even if ctx is cancelled.
func (ix *Index) AddMemory(ctx context.Context, sentence string) (*types.Memory, error) {
	if err := ix.failed(); err != nil {
		return nil, err
	}
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, goerr.Wrap(storage.ErrInvalidInput, "memory sentence is empty")
	}
	if !ix.provider.Available() {
		return nil, goerr.Wrap(embedding.ErrOffline, "cannot add memory", goerr.V("model", ix.provider.Model()))
	}

	vec, err := ix.provider.Embed(ctx, sentence)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory")
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := ix.checkVector(persistCtx, vec); err != nil {
		return nil, err
	}

	m := &types.Memory{
		ID:        ix.newID(),
		Sentence:  sentence,
		Embedding: vec,
		CreatedAt: ix.now().UTC(),
	}
	if err := ix.store.Memories().Put(persistCtx, m); err != nil {
		return nil, err
	}

	ix.publish(persistCtx, notify.MemoryCreated, m.ID)
	logging.From(ctx).Debug("memory: added", "id", m.ID, "dimension", len(vec))
	return m, nil
}

// FindSimilar returns up to k memories most similar to query. When the
// provider is offline or the query cannot be embedded it returns no
// matches and no error, so a conversation can continue without context.
// Storage errors and a dimension change are returned.
func (ix *Index) FindSimilar(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, goerr.Wrap(ErrInvalidK, "invalid k", goerr.V("k", k))
	}
	if err := ix.failed(); err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	if !ix.provider.Available() {
		logger.Warn("memory: embedding provider offline; retrieval skipped", "model", ix.provider.Model())
		return []Match{}, nil
	}

	vec, err := ix.provider.Embed(ctx, query)
	if err != nil {
		logger.Warn("memory: failed to embed query; retrieval skipped", "error", err)
		return []Match{}, nil
	}
	if err := ix.checkVector(context.WithoutCancel(ctx), vec); err != nil {
		return nil, err
	}

	memories, err := ix.store.Memories().List(ctx, storage.ListOptions[types.Memory]{})
	if err != nil {
		return nil, err
	}
	return Rank(vec, memories, k), nil
}

// DeleteMemory removes a memory. Returns storage.ErrNotFound if absent.
func (ix *Index) DeleteMemory(ctx context.Context, id string) error {
	if err := ix.store.Memories().Delete(ctx, id); err != nil {
		return err
	}
	ix.publish(ctx, notify.MemoryDeleted, id)
	return nil
}

// ListAll returns every memory in insertion order.
func (ix *Index) ListAll(ctx context.Context) ([]*types.Memory, error) {
	return ix.store.Memories().List(ctx, storage.ListOptions[types.Memory]{})
}

func (ix *Index) publish(ctx context.Context, typ notify.EventType, id string) {
	if err := ix.publisher.Publish(ctx, notify.NewEvent(typ, types.KindMemory, id)); err != nil {
		ix.logger.Warn("memory: failed to publish event", "type", typ, "id", id, "error", err)
	}
}
