package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

// threadStore keeps thread headers in threads and their messages in
// messages, keyed by (thread_id, seq). A Put rewrites both inside one
// transaction so readers never see a thread with half its messages.
type threadStore struct {
	db *sql.DB
}

const threadColumns = "id, title, tags, created_at, updated_at"

func (s *threadStore) Put(ctx context.Context, t *types.ChatThread) (err error) {
	if err := t.Validate(); err != nil {
		return storage.Invalid(err, types.KindThread)
	}

	tags, err := json.Marshal(nonNil(t.Tags))
	if err != nil {
		return storage.Invalid(err, types.KindThread)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.IOError(err, "sqlite: failed to begin thread write", types.KindThread, t.ID)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (`+threadColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			tags = excluded.tags,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, string(tags), encodeTime(t.CreatedAt), encodeTime(t.UpdatedAt))
	if err != nil {
		return storage.IOError(err, "sqlite: failed to put thread", types.KindThread, t.ID)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", t.ID); err != nil {
		return storage.IOError(err, "sqlite: failed to clear thread messages", types.KindThread, t.ID)
	}

	if len(t.Messages) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO messages (thread_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return storage.IOError(err, "sqlite: failed to prepare message insert", types.KindThread, t.ID)
		}
		defer stmt.Close()

		for i, msg := range t.Messages {
			if _, err := stmt.ExecContext(ctx, t.ID, i, string(msg.Role), msg.Content, encodeTime(msg.Timestamp)); err != nil {
				return storage.IOError(err, "sqlite: failed to insert message", types.KindThread, t.ID)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return storage.IOError(err, "sqlite: failed to commit thread", types.KindThread, t.ID)
	}
	return nil
}

func (s *threadStore) Get(ctx context.Context, id string) (*types.ChatThread, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+threadColumns+" FROM threads WHERE id = ?", id)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(types.KindThread, id)
	}
	if err != nil {
		return nil, storage.IOError(err, "sqlite: failed to get thread", types.KindThread, id)
	}

	byThread, err := s.loadMessages(ctx, "WHERE thread_id = ?", id)
	if err != nil {
		return nil, storage.IOError(err, "sqlite: failed to load messages", types.KindThread, id)
	}
	t.Messages = byThread[id]
	return t, nil
}

// Delete removes the thread; its messages go with it through ON DELETE CASCADE.
func (s *threadStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return storage.IOError(err, "sqlite: failed to delete thread", types.KindThread, id)
	}
	return requireAffected(res, types.KindThread, id)
}

func (s *threadStore) List(ctx context.Context, opts storage.ListOptions[types.ChatThread]) ([]*types.ChatThread, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+threadColumns+" FROM threads ORDER BY rowid")
	if err != nil {
		return nil, storage.IOError(err, "sqlite: failed to list threads", types.KindThread, "")
	}

	var out []*types.ChatThread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			rows.Close()
			return nil, storage.IOError(err, "sqlite: failed to scan thread", types.KindThread, "")
		}
		out = append(out, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storage.IOError(err, "sqlite: failed to list threads", types.KindThread, "")
	}

	// The single connection is free again once rows is closed.
	byThread, err := s.loadMessages(ctx, "")
	if err != nil {
		return nil, storage.IOError(err, "sqlite: failed to load messages", types.KindThread, "")
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
			ts             int64
		)
		if err := rows.Scan(&threadID, &role, &msg.Content, &ts); err != nil {
			return nil, err
		}
		msg.Role = types.Role(role)
		msg.Timestamp = decodeTime(ts)
		out[threadID] = append(out[threadID], msg)
	}
	return out, rows.Err()
}

func scanThread(row scanner) (*types.ChatThread, error) {
	var (
		t                    types.ChatThread
		tags                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.Title, &tags, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, err
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	t.CreatedAt = decodeTime(createdAt)
	t.UpdatedAt = decodeTime(updatedAt)
	return &t, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
