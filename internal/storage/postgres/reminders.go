package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/scrypster/alphalite/internal/storage"
	"github.com/scrypster/alphalite/pkg/types"
)

type reminderStore struct {
	db *sql.DB
}

const reminderColumns = "id, fire_at, text, critical, notification_handle"

func (s *reminderStore) Put(ctx context.Context, r *types.Reminder) error {
	if err := r.Validate(); err != nil {
		return storage.Invalid(err, types.KindReminder)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			fire_at = EXCLUDED.fire_at,
			text = EXCLUDED.text,
			critical = EXCLUDED.critical,
			notification_handle = EXCLUDED.notification_handle
	`, r.ID, r.When.UTC(), r.Text, r.Critical, r.NotificationHandle)
	if err != nil {
		return storage.IOError(err, "postgres: failed to put reminder", types.KindReminder, r.ID)
	}
	return nil
}

func (s *reminderStore) Get(ctx context.Context, id string) (*types.Reminder, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+reminderColumns+" FROM reminders WHERE id = $1", id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(types.KindReminder, id)
	}
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to get reminder", types.KindReminder, id)
	}
	return r, nil
}

func (s *reminderStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = $1", id)
	if err != nil {
		return storage.IOError(err, "postgres: failed to delete reminder", types.KindReminder, id)
	}
	return requireAffected(res, types.KindReminder, id)
}

func (s *reminderStore) List(ctx context.Context, opts storage.ListOptions[types.Reminder]) ([]*types.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+reminderColumns+" FROM reminders ORDER BY seq")
	if err != nil {
		return nil, storage.IOError(err, "postgres: failed to list reminders", types.KindReminder, "")
	}
	defer rows.Close()

	var out []*types.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, storage.IOError(err, "postgres: failed to scan reminder", types.KindReminder, "")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOError(err, "postgres: failed to list reminders", types.KindReminder, "")
	}
	return opts.Apply(out), nil
}

func (s *reminderStore) Count(ctx context.Context) (int, error) {
	return count(ctx, s.db, "reminders", types.KindReminder)
}

func scanReminder(row scanner) (*types.Reminder, error) {
	var r types.Reminder
	if err := row.Scan(&r.ID, &r.When, &r.Text, &r.Critical, &r.NotificationHandle); err != nil {
		return nil, err
	}
	r.When = r.When.UTC()
	return &r, nil
}
