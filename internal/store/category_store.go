package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

func (s *SQLStore) CreateCategory(ctx context.Context, name string, description string) (models.Category, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO categories (name, description, create_time) VALUES (?, ?, ?)`,
		name,
		description,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return models.Category{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Category{}, err
	}
	return s.GetCategoryByID(ctx, id)
}

func (s *SQLStore) GetCategoryByID(ctx context.Context, id int64) (models.Category, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, description, create_time FROM categories WHERE id = ?`,
		id,
	)
	return scanCategory(row)
}

func (s *SQLStore) GetCategoryByName(ctx context.Context, name string) (models.Category, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, description, create_time FROM categories WHERE name = ? COLLATE NOCASE`,
		name,
	)
	return scanCategory(row)
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, description, create_time FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, category)
	}
	return result, rows.Err()
}

func (s *SQLStore) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
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

func (s *SQLStore) CategoriesExist(ctx context.Context, ids []int64) (bool, error) {
	for _, id := range ids {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = ?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func scanCategory(scanner interface {
	Scan(dest ...any) error
}) (models.Category, error) {
	var category models.Category
	var createTime string
	if err := scanner.Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&createTime,
	); err != nil {
		return models.Category{}, err
	}
	var err error
	category.CreateTime, err = parseTime(createTime)
	if err != nil {
		return models.Category{}, err
	}
	return category, nil
}
