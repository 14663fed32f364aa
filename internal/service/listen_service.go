package service

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

var ErrInvalidListenTime = errors.New("invalid listen time")

// ListenService tracks how far each user has listened into each podcast.
// Positions only move forward: a report below the stored position is
// acknowledged but never overwrites it.
type ListenService struct {
	store *store.SQLStore
}

func NewListenService(s *store.SQLStore) *ListenService {
	return &ListenService{store: s}
}

type TrackResult struct {
	Outcome store.UpsertOutcome
	Record  models.ListenRecord
}

// maxListenSeconds bounds reported positions to 32-bit seconds. Converting
// a float64 beyond int64 range is implementation-defined, so the bound must
// hold before the int64 conversion below.
const maxListenSeconds = math.MaxUint32

func (s *ListenService) Track(ctx context.Context, userID int64, podcastID int64, seconds float64) (TrackResult, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds > maxListenSeconds {
		return TrackResult{}, ErrInvalidListenTime
	}
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return TrackResult{}, err
	}

	outcome, err := s.store.UpsertListen(ctx, userID, podcastID, int64(seconds))
	if err != nil {
		return TrackResult{}, err
	}
	record, err := s.store.GetListen(ctx, userID, podcastID)
	if err != nil {
		return TrackResult{}, err
	}
	return TrackResult{Outcome: outcome, Record: record}, nil
}

// LastPosition returns the stored position for the pair, or a zero record
// with hasListened false when the user never reported one.
func (s *ListenService) LastPosition(ctx context.Context, userID int64, podcastID int64) (models.ListenRecord, bool, error) {
	if _, err := s.store.GetPodcastByID(ctx, podcastID); err != nil {
		return models.ListenRecord{}, false, err
	}
	record, err := s.store.GetListen(ctx, userID, podcastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ListenRecord{}, false, nil
		}
		return models.ListenRecord{}, false, err
	}
	return record, true, nil
}

func (s *ListenService) History(ctx context.Context, userID int64, limit int) ([]store.ListenHistoryEntry, error) {
	return s.store.ListListenHistory(ctx, userID, limit)
}
