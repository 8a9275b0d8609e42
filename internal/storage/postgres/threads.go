package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

type threadStore struct {
	db *sql.DB
}

const threadColumns = "id, title, tags, created_at, updated_at"

func (s *threadStore) Put(ctx context.Context, t *types.ChatThread) (err error) {
	if err := t.Validate(); err != nil {
		return storage.Invalid(err, types.KindThread)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return storage.Invalid(err, types.KindThread)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.IOError(err, "postgres: failed to begin thread write", types.KindThread, t.ID)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (`+threadColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Title, string(tagsJSON), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return storage.IOError(err, "postgres: failed to put thread", types.KindThread, t.ID)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = $1", t.ID); err != nil {
		return storage.IOError(err, "postgres: failed to clear thread messages", types.KindThread, t.ID)
	}

	if len(t.Messages) > 0 {
		// COPY is the bulk path lib/pq offers inside a transaction.
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("messages", "thread_id", "seq", "role", "content", "timestamp"))
		if err != nil {
			return storage.IOError(err, "postgres: failed to prepare message copy", types.KindThread, t.ID)
		}
		for i, msg := range t.Messages {
			if _, err := stmt.ExecContext(ctx, t.ID, i, string(msg.Role), msg.Content, msg.Timestamp.UTC()); err != nil {
				stmt.Close()
				return storage.IOError(err, "postgres: failed to copy message", types.KindThread, t.ID)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return storage.IOError(err, "postgres: failed to flush message copy", types.KindThread, t.ID)
		}
		if err := stmt.Close(); err != nil {
			return storage.IOError(err, "postgres: failed to close message copy", types.KindThread, t.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return storage.IOError(err, "postgres: failed to commit thread", types.KindThread, t.ID)
	}
	return nil
}

func (s *threadStore) Get(ctx context.Context, id string) (*types.ChatThread, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+threadColumns+" FROM threads WHERE id = $1", id)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(types.KindThread, id)
	}
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to get thread", types.KindThread, id)
	}

	byThread, err := s.loadMessages(ctx, "WHERE thread_id = $1", id)
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to load messages", types.KindThread, id)
	}
	t.Messages = byThread[id]
	return t, nil
}

func (s *threadStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = $1", id)
	if err != nil {
		return storage.IOError(err, "postgres: failed to delete thread", types.KindThread, id)
	}
	return requireAffected(res, types.KindThread, id)
}

func (s *threadStore) List(ctx context.Context, opts storage.ListOptions[types.ChatThread]) ([]*types.ChatThread, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+threadColumns+" FROM threads ORDER BY seq")
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to list threads", types.KindThread, "")
	}
	defer rows.Close()

	var out []*types.ChatThread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, storage.IOError(err, "postgres: failed to scan thread", types.KindThread, "")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOError(err, "postgres: failed to list threads", types.KindThread, "")
	}

	byThread, err := s.loadMessages(ctx, "")
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to load messages", types.KindThread, "")
	}
	for _, t := range out {
		t.Messages = byThread[t.ID]
	}
	return opts.Apply(out), nil
}

func (s *threadStore) Count(ctx context.Context) (int, error) {
	return count(ctx, s.db, "threads", types.KindThread)
}

func (s *threadStore) loadMessages(ctx context.Context, where string, args ...any) (map[string][]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT thread_id, role, content, timestamp FROM messages "+where+" ORDER BY thread_id, seq", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]types.Message)
	for rows.Next() {
		var (
			threadID, role string
			msg            types.Message
		)
		if err := rows.Scan(&threadID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = types.Role(role)
		msg.Timestamp = msg.Timestamp.UTC()
		out[threadID] = append(out[threadID], msg)
	}
	return out, rows.Err()
}

func scanThread(row scanner) (*types.ChatThread, error) {
	var (
		t    types.ChatThread
		tags []byte
	)
	if err := row.Scan(&t.ID, &t.Title, &tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &t.Tags); err != nil {
		return nil, err
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
