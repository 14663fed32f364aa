package service

import (
	"context"
	"errors"
	"strings"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

var (
	ErrInvalidCategoryName = errors.New("invalid category name")
	ErrCategoryExists      = errors.New("category already exists")
)

const maxCategoryNameLength = 64

func (s *PodcastService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *PodcastService) CategoriesFor(ctx context.Context, podcastID int64) ([]models.Category, error) {
	byPodcast, err := s.store.ListCategoriesByPodcastIDs(ctx, []int64{podcastID})
	if err != nil {
		return nil, err
	}
	return byPodcast[podcastID], nil
}

func (s *PodcastService) CreateCategory(ctx context.Context, name string, description string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxCategoryNameLength {
		return models.Category{}, ErrInvalidCategoryName
	}
	if _, err := s.store.GetCategoryByName(ctx, name); err == nil {
		return models.Category{}, ErrCategoryExists
	} else if !IsNotFound(err) {
		return models.Category{}, err
	}

	category, err := s.store.CreateCategory(ctx, name, strings.TrimSpace(description))
	if err != nil {
		if store.IsUniqueConstraintErr(err) {
			return models.Category{}, ErrCategoryExists
		}
		return models.Category{}, err
	}
	return category, nil
}

func (s *PodcastService) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}
