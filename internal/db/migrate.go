package db

import (
	"database/sql"
	"fmt"
	"strings"
)

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'USER',
			create_time TEXT NOT NULL,
			update_time TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS personal_access_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_prefix TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			expires_at TEXT,
			revoked_at TEXT,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description TEXT NOT NULL DEFAULT '',
			create_time TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS podcasts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			duration INTEGER NOT NULL DEFAULT 0,
			audio_key TEXT NOT NULL,
			audio_type TEXT NOT NULL DEFAULT 'audio/mpeg',
			thumbnail_key TEXT NOT NULL DEFAULT '',
			thumbnail_type TEXT NOT NULL DEFAULT '',
			published INTEGER NOT NULL DEFAULT 0,
			published_at TEXT,
			create_time TEXT NOT NULL,
			update_time TEXT NOT NULL,
			FOREIGN KEY(author_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_podcasts_author ON podcasts(author_id);`,
		`CREATE TABLE IF NOT EXISTS podcast_categories (
			podcast_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			PRIMARY KEY(podcast_id, category_id),
			FOREIGN KEY(podcast_id) REFERENCES podcasts(id) ON DELETE CASCADE,
			FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS podcast_likes (
			podcast_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY(podcast_id, user_id),
			FOREIGN KEY(podcast_id) REFERENCES podcasts(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			podcast_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			parent_id INTEGER,
			content TEXT NOT NULL,
			create_time TEXT NOT NULL,
			update_time TEXT NOT NULL,
			FOREIGN KEY(podcast_id) REFERENCES podcasts(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(parent_id) REFERENCES comments(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_podcast ON comments(podcast_id);`,
		`CREATE TABLE IF NOT EXISTS podcast_listens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			podcast_id INTEGER NOT NULL,
			time_listened INTEGER NOT NULL,
			tracked_at TEXT NOT NULL,
			UNIQUE(user_id, podcast_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(podcast_id) REFERENCES podcasts(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_podcast_listens_user ON podcast_listens(user_id, tracked_at);`,
		`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			update_time TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	hasThumbnailType, err := hasColumn(db, "podcasts", "thumbnail_type")
	if err != nil {
		return err
	}
	if !hasThumbnailType {
		if _, err := db.Exec(`ALTER TABLE podcasts ADD COLUMN thumbnail_type TEXT NOT NULL DEFAULT '';`); err != nil {
			return fmt.Errorf("add podcasts.thumbnail_type: %w", err)
		}
	}

	return nil
}

func hasColumn(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, tableName))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("scan table_info(%s): %w", tableName, err)
		}
		if strings.EqualFold(name, columnName) {
			return true, nil
		}
	}
	return false, rows.Err()
}
