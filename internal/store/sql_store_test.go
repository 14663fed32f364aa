package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestPersonalAccessTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "owner@example.com")

	token, err := s.CreatePersonalAccessToken(ctx, user.ID, "raw-token-value", "test token")
	if err != nil {
		t.Fatalf("CreatePersonalAccessToken() error = %v", err)
	}
	if token.TokenHash == "raw-token-value" {
		t.Fatalf("token stored in plaintext")
	}
	if token.TokenHash != HashToken("raw-token-value") {
		t.Fatalf("token hash mismatch")
	}

	resolved, resolvedToken, err := s.GetUserByToken(ctx, "raw-token-value")
	if err != nil {
		t.Fatalf("GetUserByToken() error = %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved user = %d, want %d", resolved.ID, user.ID)
	}
	if resolvedToken.ID != token.ID {
		t.Fatalf("resolved token = %d, want %d", resolvedToken.ID, token.ID)
	}

	if _, _, err := s.GetUserByToken(ctx, "unknown-token"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetUserByToken(unknown) error = %v, want sql.ErrNoRows", err)
	}

	if err := s.RevokePersonalAccessToken(ctx, token.ID); err != nil {
		t.Fatalf("RevokePersonalAccessToken() error = %v", err)
	}
	if _, _, err := s.GetUserByToken(ctx, "raw-token-value"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetUserByToken(revoked) error = %v, want sql.ErrNoRows", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "owner@example.com")

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := s.CreatePersonalAccessTokenWithExpiry(ctx, user.ID, "expired-token", "old", &past); err != nil {
		t.Fatalf("CreatePersonalAccessTokenWithExpiry() error = %v", err)
	}
	if _, _, err := s.GetUserByToken(ctx, "expired-token"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetUserByToken(expired) error = %v, want sql.ErrNoRows", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	if _, err := s.CreatePersonalAccessTokenWithExpiry(ctx, user.ID, "live-token", "fresh", &future); err != nil {
		t.Fatalf("CreatePersonalAccessTokenWithExpiry() error = %v", err)
	}
	if _, _, err := s.GetUserByToken(ctx, "live-token"); err != nil {
		t.Fatalf("GetUserByToken(live) error = %v", err)
	}
}

func TestSettingsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "feature"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetSetting(missing) error = %v, want sql.ErrNoRows", err)
	}

	if err := s.UpsertSetting(ctx, "feature", "on"); err != nil {
		t.Fatalf("UpsertSetting() error = %v", err)
	}
	value, err := s.GetSetting(ctx, "feature")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if value != "on" {
		t.Fatalf("GetSetting() = %q, want on", value)
	}

	if err := s.UpsertSetting(ctx, "feature", "off"); err != nil {
		t.Fatalf("UpsertSetting(overwrite) error = %v", err)
	}
	value, err = s.GetSetting(ctx, "feature")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if value != "off" {
		t.Fatalf("GetSetting() after overwrite = %q, want off", value)
	}

	if err := s.DeleteSetting(ctx, "feature"); err != nil {
		t.Fatalf("DeleteSetting() error = %v", err)
	}
	if _, err := s.GetSetting(ctx, "feature"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetSetting(deleted) error = %v, want sql.ErrNoRows", err)
	}
}
