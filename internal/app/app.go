package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/config"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/db"
	httpserver "github.com/VcentLngW/podcast-streaming-restapi/internal/http"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/markdown"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

type Container struct {
	Config         config.Config
	Store          *store.SQLStore
	UserService    *service.UserService
	MediaStorage   *service.MediaStorageService
	PodcastService *service.PodcastService
	ListenService  *service.ListenService
	CommentService *service.CommentService
	Blobs          storage.Store
	Router         *fiber.App
}

func Build(ctx context.Context, cfg config.Config) (*Container, func() error, error) {
	sqliteDB, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		return sqliteDB.Close()
	}

	if err := db.Migrate(sqliteDB); err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	sqlStore := store.New(sqliteDB)
	userService := service.NewUserService(sqlStore)
	mediaStorage := service.NewMediaStorageService(sqlStore)
	profile, err := mediaStorage.Current(ctx)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("resolve media storage: %w", err)
	}
	cfg.Storage = profile.Backend
	cfg.S3 = profile.S3
	if err := userService.EnsureBootstrap(ctx, cfg.BootstrapUser, cfg.BootstrapToken); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("bootstrap setup: %w", err)
	}

	var blobs storage.Store
	switch cfg.Storage {
	case config.StorageBackendLocal:
		localStore, err := storage.NewLocalStore(cfg.UploadsDir)
		if err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		blobs = localStore
	case config.StorageBackendS3:
		s3Store, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		blobs = s3Store
	default:
		_ = cleanup()
		return nil, nil, fmt.Errorf("unsupported storage backend %s", cfg.Storage)
	}

	podcastService := service.NewPodcastService(sqlStore, blobs)
	listenService := service.NewListenService(sqlStore)
	commentService := service.NewCommentService(sqlStore)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Config:   cfg,
		Users:    userService,
		Podcasts: podcastService,
		Listens:  listenService,
		Comments: commentService,
		Blobs:    blobs,
		Markdown: markdown.NewService(),
	})

	return &Container{
		Config:         cfg,
		Store:          sqlStore,
		UserService:    userService,
		MediaStorage:   mediaStorage,
		PodcastService: podcastService,
		ListenService:  listenService,
		CommentService: commentService,
		Blobs:          blobs,
		Router:         router,
	}, cleanup, nil
}
