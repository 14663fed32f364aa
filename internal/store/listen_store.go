package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

type UpsertOutcome int

const (
	UpsertCreated UpsertOutcome = iota + 1
	UpsertUpdatedHigher
	UpsertIgnoredNotHigher
)

// ErrListenConflict is returned when the create/update retry loop runs out of
// attempts. It indicates pathological contention on one (user, podcast) key,
// not a client mistake.
var ErrListenConflict = errors.New("listen upsert conflict not resolved")

const upsertListenAttempts = 4

// UpsertListen records a playback position with monotonic-max semantics: the
// stored value only ever increases, and reports that do not beat it leave the
// row (including tracked_at) untouched.
//
// Two concurrent calls for the same key may both observe no existing row and
// both attempt the INSERT. The loser hits the UNIQUE(user_id, podcast_id)
// constraint and retries as a conditional UPDATE against the winner's row.
// The UPDATE's `time_listened < ?` guard makes the write atomic, so no lock
// is held across calls and distinct keys never contend with each other.
func (s *SQLStore) UpsertListen(ctx context.Context, userID int64, podcastID int64, seconds int64) (UpsertOutcome, error) {
	for attempt := 0; attempt < upsertListenAttempts; attempt++ {
		now := time.Now().UTC().Format(time.RFC3339Nano)

		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO podcast_listens (user_id, podcast_id, time_listened, tracked_at)
			VALUES (?, ?, ?, ?)`,
			userID,
			podcastID,
			seconds,
			now,
		)
		if err == nil {
			return UpsertCreated, nil
		}
		if !IsUniqueConstraintErr(err) {
			return 0, err
		}

		res, err := s.db.ExecContext(
			ctx,
			`UPDATE podcast_listens
			SET time_listened = ?, tracked_at = ?
			WHERE user_id = ? AND podcast_id = ? AND time_listened < ?`,
			seconds,
			now,
			userID,
			podcastID,
			seconds,
		)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			return UpsertUpdatedHigher, nil
		}

		// Either the stored value is already >= seconds, or the row was
		// deleted between the INSERT and the UPDATE. Distinguish the two.
		var one int
		err = s.db.QueryRowContext(
			ctx,
			`SELECT 1 FROM podcast_listens WHERE user_id = ? AND podcast_id = ?`,
			userID,
			podcastID,
		).Scan(&one)
		if err == nil {
			return UpsertIgnoredNotHigher, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		// Row vanished, retry the INSERT.
	}
	return 0, ErrListenConflict
}

func (s *SQLStore) GetListen(ctx context.Context, userID int64, podcastID int64) (models.ListenRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, podcast_id, time_listened, tracked_at
		FROM podcast_listens
		WHERE user_id = ? AND podcast_id = ?`,
		userID,
		podcastID,
	)
	return scanListenRecord(row)
}

// ListenHistoryEntry pairs a listen record with the podcast it belongs to,
// newest report first.
type ListenHistoryEntry struct {
	Record  models.ListenRecord
	Podcast models.Podcast
}

func (s *SQLStore) ListListenHistory(ctx context.Context, userID int64, limit int) ([]ListenHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT
			l.id, l.user_id, l.podcast_id, l.time_listened, l.tracked_at,
			p.id, p.author_id, p.title, p.slug, p.description, p.duration,
			p.audio_key, p.audio_type, p.thumbnail_key, p.thumbnail_type,
			p.published, p.published_at, p.create_time, p.update_time
		FROM podcast_listens l
		JOIN podcasts p ON p.id = l.podcast_id
		WHERE l.user_id = ?
		ORDER BY l.tracked_at DESC, l.id DESC
		LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]ListenHistoryEntry, 0)
	for rows.Next() {
		var entry ListenHistoryEntry
		var trackedAt string
		var published int
		var publishedAt sql.NullString
		var createTime string
		var updateTime string
		if err := rows.Scan(
			&entry.Record.ID,
			&entry.Record.UserID,
			&entry.Record.PodcastID,
			&entry.Record.TimeListened,
			&trackedAt,
			&entry.Podcast.ID,
			&entry.Podcast.AuthorID,
			&entry.Podcast.Title,
			&entry.Podcast.Slug,
			&entry.Podcast.Description,
			&entry.Podcast.Duration,
			&entry.Podcast.AudioKey,
			&entry.Podcast.AudioType,
			&entry.Podcast.ThumbnailKey,
			&entry.Podcast.ThumbnailType,
			&published,
			&publishedAt,
			&createTime,
			&updateTime,
		); err != nil {
			return nil, err
		}
		var parseErr error
		entry.Record.TrackedAt, parseErr = parseTime(trackedAt)
		if parseErr != nil {
			return nil, parseErr
		}
		entry.Podcast.Published = published == 1
		entry.Podcast.PublishedAt, parseErr = parseNullableTime(publishedAt)
		if parseErr != nil {
			return nil, parseErr
		}
		entry.Podcast.CreateTime, parseErr = parseTime(createTime)
		if parseErr != nil {
			return nil, parseErr
		}
		entry.Podcast.UpdateTime, parseErr = parseTime(updateTime)
		if parseErr != nil {
			return nil, parseErr
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *SQLStore) DeleteListensByPodcast(ctx context.Context, podcastID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM podcast_listens WHERE podcast_id = ?`, podcastID)
	return err
}

func scanListenRecord(scanner interface {
	Scan(dest ...any) error
}) (models.ListenRecord, error) {
	var record models.ListenRecord
	var trackedAt string
	if err := scanner.Scan(
		&record.ID,
		&record.UserID,
		&record.PodcastID,
		&record.TimeListened,
		&trackedAt,
	); err != nil {
		return models.ListenRecord{}, err
	}
	var err error
	record.TrackedAt, err = parseTime(trackedAt)
	if err != nil {
		return models.ListenRecord{}, err
	}
	return record, nil
}
