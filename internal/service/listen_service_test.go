package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

func TestTrackRejectsInvalidSeconds(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")
	podcast := createTestPodcast(t, svc, user, "Episode", true)

	invalid := []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1), 1e300, math.MaxUint32 + 1}
	for _, seconds := range invalid {
		if _, err := svc.listens.Track(ctx, user.ID, podcast.ID, seconds); !errors.Is(err, ErrInvalidListenTime) {
			t.Fatalf("Track(%v) error = %v, want ErrInvalidListenTime", seconds, err)
		}
	}

	// Rejected reports must leave no record behind.
	if _, hasListened, err := svc.listens.LastPosition(ctx, user.ID, podcast.ID); err != nil || hasListened {
		t.Fatalf("LastPosition() after rejected reports = (%v, %v)", hasListened, err)
	}
}

func TestTrackAcceptsBoundaryPosition(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")
	podcast := createTestPodcast(t, svc, user, "Episode", true)

	result, err := svc.listens.Track(ctx, user.ID, podcast.ID, math.MaxUint32)
	if err != nil {
		t.Fatalf("Track(max) error = %v", err)
	}
	if result.Record.TimeListened != math.MaxUint32 {
		t.Fatalf("stored = %d, want %d", result.Record.TimeListened, int64(math.MaxUint32))
	}
}

func TestTrackRequiresExistingPodcast(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")

	if _, err := svc.listens.Track(ctx, user.ID, 9999, 30); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Track(missing podcast) error = %v, want sql.ErrNoRows", err)
	}
}

func TestTrackOutcomeSequence(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")
	podcast := createTestPodcast(t, svc, user, "Episode", true)

	steps := []struct {
		seconds     float64
		wantOutcome store.UpsertOutcome
		wantStored  int64
	}{
		{seconds: 30.9, wantOutcome: store.UpsertCreated, wantStored: 30},
		{seconds: 20, wantOutcome: store.UpsertIgnoredNotHigher, wantStored: 30},
		{seconds: 45, wantOutcome: store.UpsertUpdatedHigher, wantStored: 45},
	}
	for i, step := range steps {
		result, err := svc.listens.Track(ctx, user.ID, podcast.ID, step.seconds)
		if err != nil {
			t.Fatalf("step %d: Track(%v) error = %v", i, step.seconds, err)
		}
		if result.Outcome != step.wantOutcome {
			t.Fatalf("step %d: outcome = %d, want %d", i, result.Outcome, step.wantOutcome)
		}
		if result.Record.TimeListened != step.wantStored {
			t.Fatalf("step %d: stored = %d, want %d", i, result.Record.TimeListened, step.wantStored)
		}
	}
}

func TestLastPosition(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")
	podcast := createTestPodcast(t, svc, user, "Episode", true)

	record, hasListened, err := svc.listens.LastPosition(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("LastPosition() error = %v", err)
	}
	if hasListened || record.TimeListened != 0 {
		t.Fatalf("fresh LastPosition() = (%+v, %v)", record, hasListened)
	}

	if _, err := svc.listens.Track(ctx, user.ID, podcast.ID, 120); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	record, hasListened, err = svc.listens.LastPosition(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("LastPosition() error = %v", err)
	}
	if !hasListened || record.TimeListened != 120 {
		t.Fatalf("LastPosition() = (%+v, %v), want 120/true", record, hasListened)
	}
	if record.TrackedAt.IsZero() {
		t.Fatalf("LastPosition() record has zero TrackedAt")
	}
}

func TestHistory(t *testing.T) {
	svc := setupTestServices(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "listener@example.com")
	first := createTestPodcast(t, svc, user, "First", true)
	second := createTestPodcast(t, svc, user, "Second", true)

	if _, err := svc.listens.Track(ctx, user.ID, first.ID, 10); err != nil {
		t.Fatalf("Track(first) error = %v", err)
	}
	if _, err := svc.listens.Track(ctx, user.ID, second.ID, 20); err != nil {
		t.Fatalf("Track(second) error = %v", err)
	}

	history, err := svc.listens.History(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() length = %d, want 2", len(history))
	}
	if history[0].Podcast.ID != second.ID {
		t.Fatalf("History()[0].Podcast.ID = %d, want %d", history[0].Podcast.ID, second.ID)
	}
}
