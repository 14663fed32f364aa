package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/config"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/db"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/markdown"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

const testToken = "demo-token"

type testEnv struct {
	app   *fiber.App
	store *store.SQLStore
	blobs storage.Store
	user  models.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "http_test.db")
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

	sqlStore := store.New(sqliteDB)
	userService := service.NewUserService(sqlStore)
	if err := userService.EnsureBootstrap(context.Background(), "demo@example.com", testToken); err != nil {
		t.Fatalf("EnsureBootstrap() error = %v", err)
	}
	user, err := sqlStore.GetUserByEmail(context.Background(), "demo@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}

	blobs, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	app := NewRouter(RouterDeps{
		Config:   config.Config{AllowRegistration: true, BodyLimitMB: 16},
		Users:    userService,
		Podcasts: service.NewPodcastService(sqlStore, blobs),
		Listens:  service.NewListenService(sqlStore),
		Comments: service.NewCommentService(sqlStore),
		Blobs:    blobs,
		Markdown: markdown.NewService(),
	})
	return testEnv{app: app, store: sqlStore, blobs: blobs, user: user}
}

func seedPodcast(t *testing.T, env testEnv, audio []byte) models.Podcast {
	t.Helper()
	key := "audio/seeded-test.mp3"
	if _, err := env.blobs.Put(context.Background(), key, "audio/mpeg", audio); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	podcast, err := env.store.CreatePodcast(context.Background(), store.CreatePodcastParams{
		AuthorID:  env.user.ID,
		Title:     "Seeded Episode",
		Slug:      "seeded-episode",
		Duration:  600,
		AudioKey:  key,
		AudioType: "audio/mpeg",
		Published: true,
	})
	if err != nil {
		t.Fatalf("CreatePodcast() error = %v", err)
	}
	return podcast
}

func testAudio(n int) []byte {
	audio := make([]byte, n)
	for i := range audio {
		audio[i] = byte(i % 251)
	}
	return audio
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func TestStreamEndpoint_FullObject(t *testing.T) {
	env := newTestEnv(t)
	audio := testAudio(1000)
	podcast := seedPodcast(t, env, audio)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q, want bytes", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("Content-Type = %q, want audio/mpeg", got)
	}
	if got := resp.Header.Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, audio) {
		t.Fatalf("body mismatch: got %d bytes", len(body))
	}
}

func TestStreamEndpoint_PartialContent(t *testing.T) {
	env := newTestEnv(t)
	audio := testAudio(1000)
	podcast := seedPodcast(t, env, audio)

	tests := []struct {
		name      string
		header    string
		wantCR    string
		wantBytes []byte
	}{
		{name: "first half", header: "bytes=0-499", wantCR: "bytes 0-499/1000", wantBytes: audio[:500]},
		{name: "tail clamped", header: "bytes=999-2000", wantCR: "bytes 999-999/1000", wantBytes: audio[999:]},
		{name: "open ended", header: "bytes=900-", wantCR: "bytes 900-999/1000", wantBytes: audio[900:]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
			req.Header.Set("Range", tc.header)
			resp := doRequest(t, env.app, req)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusPartialContent {
				t.Fatalf("expected 206, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Content-Range"); got != tc.wantCR {
				t.Fatalf("Content-Range = %q, want %q", got, tc.wantCR)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !bytes.Equal(body, tc.wantBytes) {
				t.Fatalf("body mismatch: got %d bytes, want %d", len(body), len(tc.wantBytes))
			}
		})
	}
}

func TestStreamEndpoint_UnsatisfiableRange(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(1000))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	req.Header.Set("Range", "bytes=1000-1005")
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes */1000" {
		t.Fatalf("Content-Range = %q, want bytes */1000", got)
	}
}

func TestStreamEndpoint_SuffixRangeDegradesToFull(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(1000))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	req.Header.Set("Range", "bytes=-500")
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
}

func TestStreamEndpoint_MissingPodcast(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/podcasts/9999/stream", nil)
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamEndpoint_ResumeHintHeader(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(1000))

	if _, err := env.store.UpsertListen(context.Background(), env.user.ID, podcast.ID, 87); err != nil {
		t.Fatalf("UpsertListen() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Last-Position"); got != "87" {
		t.Fatalf("X-Last-Position = %q, want 87", got)
	}

	anon := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	anonResp := doRequest(t, env.app, anon)
	defer anonResp.Body.Close()
	if got := anonResp.Header.Get("X-Last-Position"); got != "" {
		t.Fatalf("anonymous request should have no X-Last-Position, got %q", got)
	}
}

func TestStreamEndpoint_BadTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(100))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/stream", podcast.ID), nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Code != "UNAUTHORIZED" {
		t.Fatalf("envelope code = %q, want UNAUTHORIZED", envelope.Code)
	}
}

func trackPosition(t *testing.T, env testEnv, podcastID int64, seconds float64) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"time_listened": seconds})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/podcasts/%d/track", podcastID), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	return doRequest(t, env.app, req)
}

func TestTrackEndpoint_MonotonicSequence(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(1000))

	first := trackPosition(t, env, podcast.ID, 30)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first track: expected 201, got %d", first.StatusCode)
	}

	lower := trackPosition(t, env, podcast.ID, 20)
	defer lower.Body.Close()
	if lower.StatusCode != http.StatusOK {
		t.Fatalf("lower track: expected 200, got %d", lower.StatusCode)
	}
	var lowerBody trackResponse
	if err := json.NewDecoder(lower.Body).Decode(&lowerBody); err != nil {
		t.Fatalf("decode lower track response: %v", err)
	}
	if lowerBody.Message != "Existing listen time is longer or equal" {
		t.Fatalf("lower track message = %q", lowerBody.Message)
	}
	if lowerBody.TimeListened != 30 {
		t.Fatalf("lower track time_listened = %d, want 30", lowerBody.TimeListened)
	}

	higher := trackPosition(t, env, podcast.ID, 45)
	defer higher.Body.Close()
	if higher.StatusCode != http.StatusOK {
		t.Fatalf("higher track: expected 200, got %d", higher.StatusCode)
	}
	var higherBody trackResponse
	if err := json.NewDecoder(higher.Body).Decode(&higherBody); err != nil {
		t.Fatalf("decode higher track response: %v", err)
	}
	if higherBody.Message != "Listen time updated" {
		t.Fatalf("higher track message = %q", higherBody.Message)
	}
	if higherBody.TimeListened != 45 {
		t.Fatalf("higher track time_listened = %d, want 45", higherBody.TimeListened)
	}

	posReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/last-position", podcast.ID), nil)
	posReq.Header.Set("Authorization", "Bearer "+testToken)
	posResp := doRequest(t, env.app, posReq)
	defer posResp.Body.Close()
	if posResp.StatusCode != http.StatusOK {
		t.Fatalf("last-position: expected 200, got %d", posResp.StatusCode)
	}
	var pos lastPositionResponse
	if err := json.NewDecoder(posResp.Body).Decode(&pos); err != nil {
		t.Fatalf("decode last-position response: %v", err)
	}
	if !pos.HasListened || pos.LastPosition != 45 {
		t.Fatalf("last-position = %+v, want last_position=45 has_listened=true", pos)
	}
	if pos.TrackedAt == nil {
		t.Fatalf("expected tracked_at, got null")
	}
}

func TestTrackEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(1000))

	negative := trackPosition(t, env, podcast.ID, -5)
	defer negative.Body.Close()
	if negative.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative track: expected 400, got %d", negative.StatusCode)
	}

	// A huge but syntactically valid number must be rejected, not stored as
	// an overflowed negative position.
	huge := trackPosition(t, env, podcast.ID, 1e300)
	defer huge.Body.Close()
	if huge.StatusCode != http.StatusBadRequest {
		t.Fatalf("huge track: expected 400, got %d", huge.StatusCode)
	}
	posReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/last-position", podcast.ID), nil)
	posReq.Header.Set("Authorization", "Bearer "+testToken)
	posResp := doRequest(t, env.app, posReq)
	defer posResp.Body.Close()
	var pos lastPositionResponse
	if err := json.NewDecoder(posResp.Body).Decode(&pos); err != nil {
		t.Fatalf("decode last-position response: %v", err)
	}
	if pos.HasListened || pos.LastPosition != 0 {
		t.Fatalf("rejected report left a record: %+v", pos)
	}

	payload := []byte(`{}`)
	missing := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/podcasts/%d/track", podcast.ID), bytes.NewReader(payload))
	missing.Header.Set("Content-Type", "application/json")
	missing.Header.Set("Authorization", "Bearer "+testToken)
	missingResp := doRequest(t, env.app, missing)
	defer missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing field: expected 400, got %d", missingResp.StatusCode)
	}

	unauth := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/podcasts/%d/track", podcast.ID), bytes.NewReader([]byte(`{"time_listened": 10}`)))
	unauth.Header.Set("Content-Type", "application/json")
	unauthResp := doRequest(t, env.app, unauth)
	defer unauthResp.Body.Close()
	if unauthResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated track: expected 401, got %d", unauthResp.StatusCode)
	}
}

func TestLastPositionEndpoint_NoRecord(t *testing.T) {
	env := newTestEnv(t)
	podcast := seedPodcast(t, env, testAudio(100))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/podcasts/%d/last-position", podcast.ID), nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp := doRequest(t, env.app, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var pos lastPositionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pos.HasListened || pos.LastPosition != 0 || pos.TrackedAt != nil {
		t.Fatalf("expected zero-value position, got %+v", pos)
	}
}
