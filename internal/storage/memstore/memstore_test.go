package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/internal/storage/memstore"
	"github.com/scrypster/alphalite/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return memstore.New() })
}

func TestPutStoresCopy(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	th := storagetest.Thread("t1", "hello")
	require.NoError(t, s.Threads().Put(ctx, th))
	th.Messages[0].Content = "mutated"
	th.Tags = append(th.Tags, "late")

	got, err := s.Threads().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Empty(t, got.Tags)
}
