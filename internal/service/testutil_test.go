package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/db"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

type testServices struct {
	store    *store.SQLStore
	blobs    *storage.LocalStore
	users    *UserService
	podcasts *PodcastService
	listens  *ListenService
	comments *CommentService
}

func setupTestServices(t *testing.T) testServices {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "service_test.db")
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

	blobs, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	sqlStore := store.New(sqliteDB)
	return testServices{
		store:    sqlStore,
		blobs:    blobs,
		users:    NewUserService(sqlStore),
		podcasts: NewPodcastService(sqlStore, blobs),
		listens:  NewListenService(sqlStore),
		comments: NewCommentService(sqlStore),
	}
}

func createTestUser(t *testing.T, svc testServices, email string) models.User {
	t.Helper()
	user, err := svc.users.CreateUser(context.Background(), nil, CreateUserInput{
		Email:    email,
		Password: "test-password",
	}, true)
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", email, err)
	}
	return user
}

func createTestPodcast(t *testing.T, svc testServices, author models.User, title string, published bool) models.Podcast {
	t.Helper()
	audio := bytes.NewReader([]byte("not really audio, but enough for storage"))
	podcast, err := svc.podcasts.Create(context.Background(), author, CreatePodcastInput{
		Title:         title,
		Published:     published,
		Audio:         audio,
		AudioFilename: "upload.bin",
		AudioSize:     int64(audio.Len()),
		AudioType:     "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return podcast
}
