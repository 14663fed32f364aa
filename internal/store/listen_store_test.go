package store

import (
	"context"
	"sync"
	"testing"
)

func TestUpsertListenOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "listener@example.com")
	podcast := seedPodcast(t, s, user.ID, "episode", true)

	steps := []struct {
		seconds int64
		want    UpsertOutcome
	}{
		{seconds: 30, want: UpsertCreated},
		{seconds: 20, want: UpsertIgnoredNotHigher},
		{seconds: 30, want: UpsertIgnoredNotHigher},
		{seconds: 45, want: UpsertUpdatedHigher},
		{seconds: 0, want: UpsertIgnoredNotHigher},
	}

	for i, step := range steps {
		outcome, err := s.UpsertListen(ctx, user.ID, podcast.ID, step.seconds)
		if err != nil {
			t.Fatalf("step %d: UpsertListen(%d) error = %v", i, step.seconds, err)
		}
		if outcome != step.want {
			t.Fatalf("step %d: UpsertListen(%d) outcome = %d, want %d", i, step.seconds, outcome, step.want)
		}
	}

	record, err := s.GetListen(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("GetListen() error = %v", err)
	}
	if record.TimeListened != 45 {
		t.Fatalf("TimeListened = %d, want 45", record.TimeListened)
	}
}

func TestUpsertListenIgnoredKeepsTrackedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "listener@example.com")
	podcast := seedPodcast(t, s, user.ID, "episode", true)

	if _, err := s.UpsertListen(ctx, user.ID, podcast.ID, 60); err != nil {
		t.Fatalf("UpsertListen(60) error = %v", err)
	}
	before, err := s.GetListen(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("GetListen() error = %v", err)
	}

	if _, err := s.UpsertListen(ctx, user.ID, podcast.ID, 10); err != nil {
		t.Fatalf("UpsertListen(10) error = %v", err)
	}
	after, err := s.GetListen(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("GetListen() error = %v", err)
	}

	if !after.TrackedAt.Equal(before.TrackedAt) {
		t.Fatalf("tracked_at changed on ignored report: %v -> %v", before.TrackedAt, after.TrackedAt)
	}
	if after.TimeListened != 60 {
		t.Fatalf("TimeListened = %d, want 60", after.TimeListened)
	}
}

func TestUpsertListenScopedPerUserAndPodcast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")
	first := seedPodcast(t, s, alice.ID, "first", true)
	second := seedPodcast(t, s, alice.ID, "second", true)

	pairs := []struct {
		userID    int64
		podcastID int64
		seconds   int64
	}{
		{alice.ID, first.ID, 100},
		{alice.ID, second.ID, 5},
		{bob.ID, first.ID, 42},
	}
	for _, pair := range pairs {
		if _, err := s.UpsertListen(ctx, pair.userID, pair.podcastID, pair.seconds); err != nil {
			t.Fatalf("UpsertListen(%d, %d) error = %v", pair.userID, pair.podcastID, err)
		}
	}

	for _, pair := range pairs {
		record, err := s.GetListen(ctx, pair.userID, pair.podcastID)
		if err != nil {
			t.Fatalf("GetListen(%d, %d) error = %v", pair.userID, pair.podcastID, err)
		}
		if record.TimeListened != pair.seconds {
			t.Fatalf("GetListen(%d, %d) = %d, want %d", pair.userID, pair.podcastID, record.TimeListened, pair.seconds)
		}
	}
}

func TestUpsertListenConcurrentReportsKeepMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "listener@example.com")
	podcast := seedPodcast(t, s, user.ID, "episode", true)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seconds int64) {
			defer wg.Done()
			if _, err := s.UpsertListen(ctx, user.ID, podcast.ID, seconds); err != nil {
				errs <- err
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent UpsertListen error = %v", err)
	}

	record, err := s.GetListen(ctx, user.ID, podcast.ID)
	if err != nil {
		t.Fatalf("GetListen() error = %v", err)
	}
	if record.TimeListened != workers {
		t.Fatalf("TimeListened = %d, want %d", record.TimeListened, workers)
	}
}

func TestListListenHistoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "listener@example.com")
	first := seedPodcast(t, s, user.ID, "first", true)
	second := seedPodcast(t, s, user.ID, "second", true)

	if _, err := s.UpsertListen(ctx, user.ID, first.ID, 10); err != nil {
		t.Fatalf("UpsertListen(first) error = %v", err)
	}
	if _, err := s.UpsertListen(ctx, user.ID, second.ID, 20); err != nil {
		t.Fatalf("UpsertListen(second) error = %v", err)
	}

	history, err := s.ListListenHistory(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListListenHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Podcast.ID != second.ID {
		t.Fatalf("history[0].Podcast.ID = %d, want %d", history[0].Podcast.ID, second.ID)
	}
	if history[0].Record.TimeListened != 20 {
		t.Fatalf("history[0].TimeListened = %d, want 20", history[0].Record.TimeListened)
	}
}

func TestDeleteListensByPodcast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "listener@example.com")
	podcast := seedPodcast(t, s, user.ID, "episode", true)

	if _, err := s.UpsertListen(ctx, user.ID, podcast.ID, 10); err != nil {
		t.Fatalf("UpsertListen() error = %v", err)
	}
	if err := s.DeleteListensByPodcast(ctx, podcast.ID); err != nil {
		t.Fatalf("DeleteListensByPodcast() error = %v", err)
	}
	if _, err := s.GetListen(ctx, user.ID, podcast.ID); err == nil {
		t.Fatalf("expected listen record to be gone")
	}
}
