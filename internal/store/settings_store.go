package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// System settings are a small key/value table used for runtime storage
// configuration that survives restarts.
func (s *SQLStore) UpsertSetting(ctx context.Context, key string, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO system_settings (key, value, update_time)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, update_time = excluded.update_time`,
		key,
		value,
		now,
	)
	return err
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	return value, err
}

func (s *SQLStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system_settings WHERE key = ?`, key)
	return err
}
