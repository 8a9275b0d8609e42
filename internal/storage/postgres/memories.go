package postgres

import (
	"context"
	"database/sql"
	"errors"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

type memoryStore struct {
	db       *sql.DB
	pgvector bool
}

const memoryColumns = "id, sentence, embedding, dimension, created_at"

func (s *memoryStore) Put(ctx context.Context, m *types.Memory) error {
	if err := m.Validate(); err != nil {
		return storage.Invalid(err, types.KindMemory)
	}
	blob := storage.EncodeEmbedding(m.Embedding)

	var err error
	if s.pgvector {
		// pgvector stores float32; the BYTEA column stays authoritative.
		f32 := make([]float32, len(m.Embedding))
		for i, v := range m.Embedding {
			f32[i] = float32(v)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO memories (id, sentence, embedding, dimension, created_at, embedding_vec)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				sentence = EXCLUDED.sentence,
				embedding = EXCLUDED.embedding,
				dimension = EXCLUDED.dimension,
				created_at = EXCLUDED.created_at,
				embedding_vec = EXCLUDED.embedding_vec
		`, m.ID, m.Sentence, blob, len(m.Embedding), m.CreatedAt.UTC(), pgvector.NewVector(f32))
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO memories (id, sentence, embedding, dimension, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				sentence = EXCLUDED.sentence,
				embedding = EXCLUDED.embedding,
				dimension = EXCLUDED.dimension,
				created_at = EXCLUDED.created_at
		`, m.ID, m.Sentence, blob, len(m.Embedding), m.CreatedAt.UTC())
	}
	if err != nil {
		return storage.IOError(err, "postgres: failed to put memory", types.KindMemory, m.ID)
	}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id = $1", id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(types.KindMemory, id)
	}
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to get memory", types.KindMemory, id)
	}
	return m, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return storage.IOError(err, "postgres: failed to delete memory", types.KindMemory, id)
	}
	return requireAffected(res, types.KindMemory, id)
}

func (s *memoryStore) List(ctx context.Context, opts storage.ListOptions[types.Memory]) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+memoryColumns+" FROM memories ORDER BY seq")
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to list memories", types.KindMemory, "")
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storage.IOError(err, "postgres: failed to scan memory", types.KindMemory, "")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOError(err, "postgres: failed to list memories", types.KindMemory, "")
	}
	return opts.Apply(out), nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	return count(ctx, s.db, "memories", types.KindMemory)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var (
		m         types.Memory
		blob      []byte
		dimension int
	)
	if err := row.Scan(&m.ID, &m.Sentence, &blob, &dimension, &m.CreatedAt); err != nil {
		return nil, err
	}
	vec, err := storage.DecodeEmbedding(blob, dimension)
	if err != nil {
		return nil, err
	}
	m.Embedding = vec
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func requireAffected(res sql.Result, kind types.Kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storage.IOError(err, "postgres: failed to read affected rows", kind, id)
	}
	if n == 0 {
		return storage.NotFound(kind, id)
	}
	return nil
}

func count(ctx context.Context, db *sql.DB, table string, kind types.Kind) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, storage.IOError(err, "postgres: failed to count records", kind, "")
	}
	return n, nil
}
