package models

import (
	"strconv"
	"time"
)

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	CreateTime   time.Time
	UpdateTime   time.Time
}

type PersonalAccessToken struct {
	ID          int64
	UserID      int64
	TokenPrefix string
	TokenHash   string
	Description string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
}

type Category struct {
	ID          int64
	Name        string
	Description string
	CreateTime  time.Time
}

type Podcast struct {
	ID            int64
	AuthorID      int64
	Title         string
	Slug          string
	Description   string
	Duration      int64 // seconds
	AudioKey      string
	AudioType     string
	ThumbnailKey  string
	ThumbnailType string
	Published     bool
	PublishedAt   *time.Time
	CreateTime    time.Time
	UpdateTime    time.Time
}

type Comment struct {
	ID         int64
	PodcastID  int64
	UserID     int64
	ParentID   *int64
	Content    string
	CreateTime time.Time
	UpdateTime time.Time
}

// ListenRecord is the single highest playback position ever reported for a
// (user, podcast) pair. TimeListened only ever grows; see store.UpsertListen.
type ListenRecord struct {
	ID           int64
	UserID       int64
	PodcastID    int64
	TimeListened int64
	TrackedAt    time.Time
}

func (p Podcast) Name() string {
	return "podcasts/" + Int64ToString(p.ID)
}

func (u User) Name() string {
	return "users/" + Int64ToString(u.ID)
}

func Int64ToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
