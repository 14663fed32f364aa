package service

import (
	"context"
	"errors"
	"strings"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

var (
	ErrInvalidComment = errors.New("invalid comment")
	ErrUnknownParent  = errors.New("unknown parent comment")
)

const maxCommentLength = 2000

type CommentService struct {
	store *store.SQLStore
}

func NewCommentService(s *store.SQLStore) *CommentService {
	return &CommentService{store: s}
}

func (s *CommentService) Add(ctx context.Context, podcastID int64, userID int64, parentID *int64, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxCommentLength {
		return models.Comment{}, ErrInvalidComment
	}
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return models.Comment{}, err
	}
	if parentID != nil {
		parent, err := s.store.GetCommentByID(ctx, *parentID)
		if err != nil {
			if IsNotFound(err) {
				return models.Comment{}, ErrUnknownParent
			}
			return models.Comment{}, err
		}
		if parent.PodcastID != podcastID {
			return models.Comment{}, ErrUnknownParent
		}
	}
	return s.store.CreateComment(ctx, podcastID, userID, parentID, content)
}

type CommentPage struct {
	Comments []models.Comment
	Total    int64
	Replies  map[int64]int64
}

func (s *CommentService) List(ctx context.Context, podcastID int64, limit int, offset int) (CommentPage, error) {
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return CommentPage{}, err
	}
	comments, err := s.store.ListCommentsByPodcast(ctx, podcastID, limit, offset)
	if err != nil {
		return CommentPage{}, err
	}
	total, err := s.store.CountCommentsByPodcast(ctx, podcastID)
	if err != nil {
		return CommentPage{}, err
	}
	replies := make(map[int64]int64, len(comments))
	for _, comment := range comments {
		count, err := s.store.CountReplies(ctx, comment.ID)
		if err != nil {
			return CommentPage{}, err
		}
		replies[comment.ID] = count
	}
	return CommentPage{Comments: comments, Total: total, Replies: replies}, nil
}

func (s *CommentService) Delete(ctx context.Context, actor models.User, commentID int64) error {
	comment, err := s.store.GetCommentByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != actor.ID && !strings.EqualFold(actor.Role, "ADMIN") {
		return ErrNotOwner
	}
	return s.store.DeleteComment(ctx, commentID)
}
