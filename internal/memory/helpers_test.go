package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/storage/memstore"
	"github.com/scrypster/alphalite/pkg/types"
)

func storageMemory(id string, vec ...float64) *types.Memory {
	return &types.Memory{
		ID:        id,
		Sentence:  "sentence " + id,
		Embedding: vec,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func memstoreWith(t *testing.T, memories ...*types.Memory) *memstore.Store {
	t.Helper()
	s := memstore.New()
	for _, m := range memories {
		require.NoError(t, s.Memories().Put(context.Background(), m))
	}
	return s
}
