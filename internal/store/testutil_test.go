package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/db"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store_test.db")
	sqliteDB, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = sqliteDB.Close()
	})
	if err := db.Migrate(sqliteDB); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(sqliteDB)
}

func seedUser(t *testing.T, s *SQLStore, email string) models.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), email, "", "USER")
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", email, err)
	}
	return user
}

func seedPodcast(t *testing.T, s *SQLStore, authorID int64, title string, published bool) models.Podcast {
	t.Helper()
	podcast, err := s.CreatePodcast(context.Background(), CreatePodcastParams{
		AuthorID:  authorID,
		Title:     title,
		Slug:      fmt.Sprintf("%s-%d", title, authorID),
		Duration:  300,
		AudioKey:  "audio/" + title + ".mp3",
		AudioType: "audio/mpeg",
		Published: published,
	})
	if err != nil {
		t.Fatalf("CreatePodcast(%q) error = %v", title, err)
	}
	return podcast
}
