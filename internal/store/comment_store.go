package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

func (s *SQLStore) CreateComment(ctx context.Context, podcastID int64, userID int64, parentID *int64, content string) (models.Comment, error) {
	now := time.Now().UTC()
	var parentValue any
	if parentID != nil {
		parentValue = *parentID
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO comments (podcast_id, user_id, parent_id, content, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		podcastID,
		userID,
		parentValue,
		content,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return models.Comment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Comment{}, err
	}
	return s.GetCommentByID(ctx, id)
}

func (s *SQLStore) GetCommentByID(ctx context.Context, id int64) (models.Comment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, podcast_id, user_id, parent_id, content, create_time, update_time
		FROM comments WHERE id = ?`,
		id,
	)
	return scanComment(row)
}

func (s *SQLStore) ListCommentsByPodcast(ctx context.Context, podcastID int64, limit int, offset int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, podcast_id, user_id, parent_id, content, create_time, update_time
		FROM comments
		WHERE podcast_id = ?
		ORDER BY create_time DESC, id DESC
		LIMIT ? OFFSET ?`,
		podcastID,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

func (s *SQLStore) CountCommentsByPodcast(ctx context.Context, podcastID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM comments WHERE podcast_id = ?`, podcastID).Scan(&count)
	return count, err
}

func (s *SQLStore) CountReplies(ctx context.Context, commentID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM comments WHERE parent_id = ?`, commentID).Scan(&count)
	return count, err
}

func (s *SQLStore) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
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

func scanComment(scanner interface {
	Scan(dest ...any) error
}) (models.Comment, error) {
	var comment models.Comment
	var parentID sql.NullInt64
	var createTime string
	var updateTime string
	if err := scanner.Scan(
		&comment.ID,
		&comment.PodcastID,
		&comment.UserID,
		&parentID,
		&comment.Content,
		&createTime,
		&updateTime,
	); err != nil {
		return models.Comment{}, err
	}
	if parentID.Valid {
		v := parentID.Int64
		comment.ParentID = &v
	}
	var err error
	comment.CreateTime, err = parseTime(createTime)
	if err != nil {
		return models.Comment{}, err
	}
	comment.UpdateTime, err = parseTime(updateTime)
	if err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}
