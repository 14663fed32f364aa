package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/media"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

var (
	ErrInvalidTitle    = errors.New("invalid title")
	ErrInvalidAudio    = errors.New("invalid audio upload")
	ErrUnknownCategory = errors.New("unknown category")
	ErrNotOwner        = errors.New("not the podcast owner")

	slugStripPattern    = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapsePattern = regexp.MustCompile(`-{2,}`)
)

const maxTitleLength = 200

type PodcastService struct {
	store *store.SQLStore
	blobs storage.Store
}

func NewPodcastService(s *store.SQLStore, blobs storage.Store) *PodcastService {
	return &PodcastService{store: s, blobs: blobs}
}

type CreatePodcastInput struct {
	Title       string
	Description string
	Published   bool
	CategoryIDs []int64

	Audio         io.ReadSeeker
	AudioFilename string
	AudioSize     int64
	AudioType     string
	Thumbnail     []byte
	ThumbnailName string
	ThumbnailType string
}

func (s *PodcastService) Create(ctx context.Context, author models.User, input CreatePodcastInput) (models.Podcast, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len([]rune(title)) > maxTitleLength {
		return models.Podcast{}, ErrInvalidTitle
	}
	if input.Audio == nil || input.AudioSize <= 0 {
		return models.Podcast{}, ErrInvalidAudio
	}

	if len(input.CategoryIDs) > 0 {
		ok, err := s.store.CategoriesExist(ctx, input.CategoryIDs)
		if err != nil {
			return models.Podcast{}, err
		}
		if !ok {
			return models.Podcast{}, ErrUnknownCategory
		}
	}

	probed, err := media.Probe(input.Audio, input.AudioFilename)
	if err != nil {
		return models.Podcast{}, fmt.Errorf("probe audio: %w", err)
	}

	slug, err := s.uniqueSlug(ctx, title)
	if err != nil {
		return models.Podcast{}, err
	}

	audioType := strings.TrimSpace(input.AudioType)
	if audioType == "" {
		audioType = "audio/mpeg"
	}
	audioKey := objectKey("audio", input.AudioFilename)
	if _, err := s.blobs.PutStream(ctx, audioKey, audioType, input.Audio, input.AudioSize); err != nil {
		return models.Podcast{}, fmt.Errorf("store audio: %w", err)
	}

	var thumbnailKey, thumbnailType string
	if len(input.Thumbnail) > 0 {
		thumbnailType = strings.TrimSpace(input.ThumbnailType)
		if thumbnailType == "" {
			thumbnailType = "image/jpeg"
		}
		thumbnailKey = objectKey("thumbnails", input.ThumbnailName)
		if _, err := s.blobs.Put(ctx, thumbnailKey, thumbnailType, input.Thumbnail); err != nil {
			_ = s.blobs.Delete(ctx, audioKey)
			return models.Podcast{}, fmt.Errorf("store thumbnail: %w", err)
		}
	}

	podcast, err := s.store.CreatePodcast(ctx, store.CreatePodcastParams{
		AuthorID:      author.ID,
		Title:         title,
		Slug:          slug,
		Description:   strings.TrimSpace(input.Description),
		Duration:      probed.DurationSeconds,
		AudioKey:      audioKey,
		AudioType:     audioType,
		ThumbnailKey:  thumbnailKey,
		ThumbnailType: thumbnailType,
		Published:     input.Published,
		CategoryIDs:   input.CategoryIDs,
	})
	if err != nil {
		_ = s.blobs.Delete(ctx, audioKey)
		if thumbnailKey != "" {
			_ = s.blobs.Delete(ctx, thumbnailKey)
		}
		return models.Podcast{}, err
	}
	return podcast, nil
}

func (s *PodcastService) Get(ctx context.Context, id int64) (models.Podcast, error) {
	return s.store.GetPodcastByID(ctx, id)
}

type ListPodcastsInput struct {
	Search     string
	CategoryID int64
	Filter     string
	Limit      int
}

func (s *PodcastService) List(ctx context.Context, input ListPodcastsInput) ([]models.Podcast, map[int64][]models.Category, error) {
	filter, err := CompilePodcastFilter(input.Filter)
	if err != nil {
		return nil, nil, err
	}
	podcasts, err := s.store.ListPodcasts(ctx, input.Search, input.CategoryID, input.Limit)
	if err != nil {
		return nil, nil, err
	}
	return s.applyFilter(ctx, podcasts, filter)
}

// Discover orders podcasts by like and comment counts so the most engaged
// episodes surface first.
func (s *PodcastService) Discover(ctx context.Context, input ListPodcastsInput) ([]models.Podcast, map[int64][]models.Category, error) {
	filter, err := CompilePodcastFilter(input.Filter)
	if err != nil {
		return nil, nil, err
	}
	podcasts, err := s.store.ListPodcastsByEngagement(ctx, input.Search, input.CategoryID, input.Limit)
	if err != nil {
		return nil, nil, err
	}
	return s.applyFilter(ctx, podcasts, filter)
}

func (s *PodcastService) applyFilter(ctx context.Context, podcasts []models.Podcast, filter *CELPodcastFilter) ([]models.Podcast, map[int64][]models.Category, error) {
	ids := make([]int64, 0, len(podcasts))
	for _, p := range podcasts {
		ids = append(ids, p.ID)
	}
	categories, err := s.store.ListCategoriesByPodcastIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if filter == nil {
		return podcasts, categories, nil
	}

	matched := make([]models.Podcast, 0, len(podcasts))
	for _, p := range podcasts {
		ok, err := filter.Matches(p, categories[p.ID])
		if err != nil {
			return nil, nil, err
		}
		if ok {
			matched = append(matched, p)
		}
	}
	return matched, categories, nil
}

// Delete removes the podcast row, its listen records and its blobs. Blob
// deletion happens last so a storage failure never leaves a dangling row.
func (s *PodcastService) Delete(ctx context.Context, actor models.User, id int64) error {
	podcast, err := s.store.GetPodcastByID(ctx, id)
	if err != nil {
		return err
	}
	if podcast.AuthorID != actor.ID && !strings.EqualFold(actor.Role, "ADMIN") {
		return ErrNotOwner
	}

	if err := s.store.DeleteListensByPodcast(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeletePodcast(ctx, id); err != nil {
		return err
	}

	if podcast.AudioKey != "" {
		if err := s.blobs.Delete(ctx, podcast.AudioKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if podcast.ThumbnailKey != "" {
		if err := s.blobs.Delete(ctx, podcast.ThumbnailKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *PodcastService) Like(ctx context.Context, podcastID int64, userID int64) (int64, error) {
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return 0, err
	}
	if _, err := s.store.LikePodcast(ctx, podcastID, userID); err != nil {
		return 0, err
	}
	return s.store.CountLikes(ctx, podcastID)
}

func (s *PodcastService) Unlike(ctx context.Context, podcastID int64, userID int64) (int64, error) {
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return 0, err
	}
	if _, err := s.store.UnlikePodcast(ctx, podcastID, userID); err != nil {
		return 0, err
	}
	return s.store.CountLikes(ctx, podcastID)
}

func (s *PodcastService) Likes(ctx context.Context, podcastID int64, userID int64) (int64, bool, error) {
	count, err := s.store.CountLikes(ctx, podcastID)
	if err != nil {
		return 0, false, err
	}
	liked := false
	if userID > 0 {
		liked, err = s.store.HasLiked(ctx, podcastID, userID)
		if err != nil {
			return 0, false, err
		}
	}
	return count, liked, nil
}

func (s *PodcastService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slugify(title)
	if base == "" {
		base = "podcast"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		if i > 50 {
			return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func slugify(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = slugStripPattern.ReplaceAllString(s, "-")
	s = slugCollapsePattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func objectKey(prefix string, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), ext)
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
