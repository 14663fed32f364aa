package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

type CreatePodcastParams struct {
	AuthorID      int64
	Title         string
	Slug          string
	Description   string
	Duration      int64
	AudioKey      string
	AudioType     string
	ThumbnailKey  string
	ThumbnailType string
	Published     bool
	CategoryIDs   []int64
}

func (s *SQLStore) CreatePodcast(ctx context.Context, params CreatePodcastParams) (models.Podcast, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Podcast{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var publishedAt any
	if params.Published {
		publishedAt = now.Format(time.RFC3339Nano)
	}
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO podcasts (author_id, title, slug, description, duration, audio_key, audio_type, thumbnail_key, thumbnail_type, published, published_at, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.AuthorID,
		params.Title,
		params.Slug,
		params.Description,
		params.Duration,
		params.AudioKey,
		params.AudioType,
		params.ThumbnailKey,
		params.ThumbnailType,
		boolToSQLiteInt(params.Published),
		publishedAt,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return models.Podcast{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Podcast{}, err
	}

	for _, categoryID := range params.CategoryIDs {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO podcast_categories (podcast_id, category_id) VALUES (?, ?)`,
			id,
			categoryID,
		); err != nil {
			return models.Podcast{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Podcast{}, err
	}
	return s.GetPodcastByID(ctx, id)
}

func (s *SQLStore) GetPodcastByID(ctx context.Context, id int64) (models.Podcast, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, author_id, title, slug, description, duration, audio_key, audio_type, thumbnail_key, thumbnail_type, published, published_at, create_time, update_time
		FROM podcasts
		WHERE id = ?`,
		id,
	)
	return scanPodcast(row)
}

func (s *SQLStore) DeletePodcast(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPodcasts returns podcasts newest first, optionally narrowed by a title
// substring and a category. Limit caps the in-memory window handed to the CEL
// filter layer above.
func (s *SQLStore) ListPodcasts(ctx context.Context, search string, categoryID int64, limit int) ([]models.Podcast, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT p.id, p.author_id, p.title, p.slug, p.description, p.duration, p.audio_key, p.audio_type, p.thumbnail_key, p.thumbnail_type, p.published, p.published_at, p.create_time, p.update_time
		FROM podcasts p`
	var conditions []string
	var args []any
	if categoryID > 0 {
		query += ` JOIN podcast_categories pc ON pc.podcast_id = p.id`
		conditions = append(conditions, `pc.category_id = ?`)
		args = append(args, categoryID)
	}
	if search = strings.TrimSpace(search); search != "" {
		conditions = append(conditions, `p.title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(search)+"%")
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY p.create_time DESC, p.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Podcast, 0)
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, podcast)
	}
	return result, rows.Err()
}

// ListPodcastsByEngagement orders by likes + comments, most engaged first.
func (s *SQLStore) ListPodcastsByEngagement(ctx context.Context, search string, categoryID int64, limit int) ([]models.Podcast, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT p.id, p.author_id, p.title, p.slug, p.description, p.duration, p.audio_key, p.audio_type, p.thumbnail_key, p.thumbnail_type, p.published, p.published_at, p.create_time, p.update_time
		FROM podcasts p
		LEFT JOIN (SELECT podcast_id, COUNT(1) AS like_count FROM podcast_likes GROUP BY podcast_id) lk ON lk.podcast_id = p.id
		LEFT JOIN (SELECT podcast_id, COUNT(1) AS comment_count FROM comments GROUP BY podcast_id) cm ON cm.podcast_id = p.id`
	var conditions []string
	var args []any
	if categoryID > 0 {
		query += ` JOIN podcast_categories pc ON pc.podcast_id = p.id`
		conditions = append(conditions, `pc.category_id = ?`)
		args = append(args, categoryID)
	}
	if search = strings.TrimSpace(search); search != "" {
		conditions = append(conditions, `p.title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(search)+"%")
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY COALESCE(lk.like_count, 0) + COALESCE(cm.comment_count, 0) DESC, p.create_time DESC, p.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Podcast, 0)
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, podcast)
	}
	return result, rows.Err()
}

func (s *SQLStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM podcasts WHERE slug = ?`, slug).Scan(&one)
	if err == nil {
		return true, nil
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	return false, err
}

func (s *SQLStore) ListCategoriesByPodcastIDs(ctx context.Context, podcastIDs []int64) (map[int64][]models.Category, error) {
	result := make(map[int64][]models.Category, len(podcastIDs))
	if len(podcastIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, 0, len(podcastIDs))
	args := make([]any, 0, len(podcastIDs))
	for _, id := range podcastIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf(
			`SELECT pc.podcast_id, c.id, c.name, c.description, c.create_time
			FROM podcast_categories pc
			JOIN categories c ON c.id = pc.category_id
			WHERE pc.podcast_id IN (%s)
			ORDER BY c.name`,
			strings.Join(placeholders, ","),
		),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var podcastID int64
		var category models.Category
		var createTime string
		if err := rows.Scan(&podcastID, &category.ID, &category.Name, &category.Description, &createTime); err != nil {
			return nil, err
		}
		category.CreateTime, err = parseTime(createTime)
		if err != nil {
			return nil, err
		}
		result[podcastID] = append(result[podcastID], category)
	}
	return result, rows.Err()
}

func (s *SQLStore) LikePodcast(ctx context.Context, podcastID int64, userID int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO podcast_likes (podcast_id, user_id, created_at) VALUES (?, ?, ?)`,
		podcastID,
		userID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLStore) UnlikePodcast(ctx context.Context, podcastID int64, userID int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM podcast_likes WHERE podcast_id = ? AND user_id = ?`,
		podcastID,
		userID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLStore) HasLiked(ctx context.Context, podcastID int64, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT 1 FROM podcast_likes WHERE podcast_id = ? AND user_id = ?`,
		podcastID,
		userID,
	).Scan(&one)
	if err == nil {
		return true, nil
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	return false, err
}

func (s *SQLStore) CountLikes(ctx context.Context, podcastID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM podcast_likes WHERE podcast_id = ?`, podcastID).Scan(&count)
	return count, err
}

func scanPodcast(scanner interface {
	Scan(dest ...any) error
}) (models.Podcast, error) {
	var podcast models.Podcast
	var published int
	var publishedAt sql.NullString
	var createTime string
	var updateTime string
	if err := scanner.Scan(
		&podcast.ID,
		&podcast.AuthorID,
		&podcast.Title,
		&podcast.Slug,
		&podcast.Description,
		&podcast.Duration,
		&podcast.AudioKey,
		&podcast.AudioType,
		&podcast.ThumbnailKey,
		&podcast.ThumbnailType,
		&published,
		&publishedAt,
		&createTime,
		&updateTime,
	); err != nil {
		return models.Podcast{}, err
	}
	podcast.Published = published == 1
	var err error
	podcast.PublishedAt, err = parseNullableTime(publishedAt)
	if err != nil {
		return models.Podcast{}, err
	}
	podcast.CreateTime, err = parseTime(createTime)
	if err != nil {
		return models.Podcast{}, err
	}
	podcast.UpdateTime, err = parseTime(updateTime)
	if err != nil {
		return models.Podcast{}, err
	}
	return podcast, nil
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}

func boolToSQLiteInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
