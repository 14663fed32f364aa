package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/config"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

// mediaStorageKey holds the whole media storage profile as one JSON document,
// so a backend switch is a single atomic settings write.
const mediaStorageKey = "media_storage"

// MediaStorageProfile is where podcast audio and thumbnails live. It is
// persisted so a restart keeps serving existing episodes from the same
// backend they were uploaded to.
type MediaStorageProfile struct {
	Backend config.StorageBackend
	S3      config.S3Config
}

// Summary renders the profile for operator output with the credential
// fields redacted.
func (p MediaStorageProfile) Summary() string {
	if p.Backend != config.StorageBackendS3 {
		return fmt.Sprintf("backend=%s", p.Backend)
	}
	return fmt.Sprintf("backend=s3 endpoint=%s region=%s bucket=%s pathStyle=%t accessKeyId=%s",
		p.S3.Endpoint, p.S3.Region, p.S3.Bucket, p.S3.UsePathStyle, redactKeyID(p.S3.AccessKeyID))
}

func redactKeyID(keyID string) string {
	if len(keyID) <= 4 {
		return "****"
	}
	return keyID[:4] + "****"
}

// mediaStorageDocument is the persisted wire form of the profile. S3 fields
// are flattened so the stored JSON stays greppable in the settings table.
type mediaStorageDocument struct {
	Backend      string `json:"backend"`
	Endpoint     string `json:"endpoint,omitempty"`
	Region       string `json:"region,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
	AccessKeyID  string `json:"accessKeyId,omitempty"`
	AccessSecret string `json:"accessSecret,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`
}

type MediaStorageService struct {
	store *store.SQLStore
}

func NewMediaStorageService(s *store.SQLStore) *MediaStorageService {
	return &MediaStorageService{store: s}
}

// Current loads the persisted profile. A fresh database has none; local
// storage is adopted and written back so later boots see an explicit choice.
func (s *MediaStorageService) Current(ctx context.Context) (MediaStorageProfile, error) {
	raw, err := s.store.GetSetting(ctx, mediaStorageKey)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return MediaStorageProfile{}, fmt.Errorf("load media storage profile: %w", err)
		}
		profile := MediaStorageProfile{Backend: config.StorageBackendLocal}
		if err := s.persist(ctx, profile); err != nil {
			return MediaStorageProfile{}, err
		}
		return profile, nil
	}

	var doc mediaStorageDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return MediaStorageProfile{}, fmt.Errorf("media storage profile is corrupt: %w", err)
	}
	return docToProfile(doc)
}

func (s *MediaStorageService) UseLocal(ctx context.Context) error {
	return s.persist(ctx, MediaStorageProfile{Backend: config.StorageBackendLocal})
}

func (s *MediaStorageService) UseS3(ctx context.Context, cfg config.S3Config) error {
	normalized := config.S3Config{
		Endpoint:     strings.TrimSpace(cfg.Endpoint),
		Region:       strings.TrimSpace(cfg.Region),
		Bucket:       strings.TrimSpace(cfg.Bucket),
		AccessKeyID:  strings.TrimSpace(cfg.AccessKeyID),
		AccessSecret: strings.TrimSpace(cfg.AccessSecret),
		UsePathStyle: cfg.UsePathStyle,
	}
	if err := normalized.Validate(); err != nil {
		return err
	}
	return s.persist(ctx, MediaStorageProfile{
		Backend: config.StorageBackendS3,
		S3:      normalized,
	})
}

func (s *MediaStorageService) persist(ctx context.Context, profile MediaStorageProfile) error {
	doc := mediaStorageDocument{
		Backend: string(profile.Backend),
	}
	if profile.Backend == config.StorageBackendS3 {
		doc.Endpoint = profile.S3.Endpoint
		doc.Region = profile.S3.Region
		doc.Bucket = profile.S3.Bucket
		doc.AccessKeyID = profile.S3.AccessKeyID
		doc.AccessSecret = profile.S3.AccessSecret
		doc.UsePathStyle = profile.S3.UsePathStyle
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode media storage profile: %w", err)
	}
	if err := s.store.UpsertSetting(ctx, mediaStorageKey, string(encoded)); err != nil {
		return fmt.Errorf("save media storage profile: %w", err)
	}
	return nil
}

func docToProfile(doc mediaStorageDocument) (MediaStorageProfile, error) {
	backend := config.StorageBackend(strings.ToLower(strings.TrimSpace(doc.Backend)))
	switch backend {
	case config.StorageBackendLocal:
		return MediaStorageProfile{Backend: backend}, nil
	case config.StorageBackendS3:
		profile := MediaStorageProfile{
			Backend: backend,
			S3: config.S3Config{
				Endpoint:     doc.Endpoint,
				Region:       doc.Region,
				Bucket:       doc.Bucket,
				AccessKeyID:  doc.AccessKeyID,
				AccessSecret: doc.AccessSecret,
				UsePathStyle: doc.UsePathStyle,
			},
		}
		if err := profile.S3.Validate(); err != nil {
			return MediaStorageProfile{}, fmt.Errorf("media storage profile is incomplete: %w", err)
		}
		return profile, nil
	default:
		return MediaStorageProfile{}, fmt.Errorf("media storage profile names unknown backend %q", doc.Backend)
	}
}
