package http

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/config"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/markdown"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
)

const apiVersion = "podcasts.v1"

type RouterDeps struct {
	Config   config.Config
	Users    *service.UserService
	Podcasts *service.PodcastService
	Listens  *service.ListenService
	Comments *service.CommentService
	Blobs    storage.Store
	Markdown *markdown.Service
}

func NewRouter(deps RouterDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             deps.Config.BodyLimitMB * 1024 * 1024,
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())
	app.Use(cors.New())

	cfg := deps.Config
	userService := deps.Users
	podcastService := deps.Podcasts
	listenService := deps.Listens
	commentService := deps.Comments

	app.Get("/api/v1/instance/profile", func(c *fiber.Ctx) error {
		return c.JSON(profileResponse{
			Version: apiVersion,
		})
	})

	app.Post("/api/v1/auth/signin", func(c *fiber.Ctx) error {
		var req signInRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Email == "" || req.Password == "" {
			return badRequest(c, "email and password are required")
		}

		user, accessToken, err := userService.SignInWithPassword(c.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				return badRequest(c, "unmatched email and password")
			default:
				return internalError(c, err)
			}
		}

		return c.JSON(signInResponse{
			User:        toAPIUser(user),
			AccessToken: accessToken,
		})
	})

	app.Post("/api/v1/users", func(c *fiber.Ctx) error {
		var req createUserRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		creator, err := OptionalAuthenticateToken(c, userService)
		if err != nil {
			return respondAuthError(c, err)
		}

		allowRegistration, err := userService.ResolveAllowRegistration(c.Context(), cfg.AllowRegistration)
		if err != nil {
			return internalError(c, err)
		}

		user, err := userService.CreateUser(c.Context(), creator, service.CreateUserInput{
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
		}, allowRegistration)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidEmail):
				return badRequest(c, "invalid email")
			case errors.Is(err, service.ErrInvalidPassword):
				return badRequest(c, "password must be at least 8 characters")
			case errors.Is(err, service.ErrInvalidRole):
				return badRequest(c, "invalid role")
			case errors.Is(err, service.ErrEmailAlreadyExists):
				return conflict(c, "email already exists")
			case errors.Is(err, service.ErrRegistrationDisabled):
				return forbidden(c, "user registration is not allowed")
			default:
				return internalError(c, err)
			}
		}

		return c.JSON(toAPIUser(user))
	})

	app.Get("/api/v1/podcasts", listPodcastsHandler(deps, false))
	app.Get("/api/v1/podcasts/discover", listPodcastsHandler(deps, true))

	app.Get("/api/v1/podcasts/:id/stream", streamHandler(podcastService, listenService, userService, deps.Blobs))
	app.Get("/api/v1/podcasts/:id/thumbnail", thumbnailHandler(podcastService, userService, deps.Blobs))

	app.Get("/api/v1/podcasts/:id", func(c *fiber.Ctx) error {
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		podcast, err := podcastService.Get(c.Context(), podcastID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "podcast not found")
			}
			return internalError(c, err)
		}
		viewer, err := OptionalAuthenticateToken(c, userService)
		if err != nil {
			return respondAuthError(c, err)
		}
		if !visibleTo(podcast, viewer) {
			return notFound(c, "podcast not found")
		}
		categories, err := podcastService.CategoriesFor(c.Context(), podcast.ID)
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(toAPIPodcast(deps, podcast, categories))
	})

	app.Get("/api/v1/podcasts/:id/comments", func(c *fiber.Ctx) error {
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("pageSize", "10")))
		offset, _ := strconv.Atoi(strings.TrimSpace(c.Query("offset", "0")))
		page, err := commentService.List(c.Context(), podcastID, limit, offset)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "podcast not found")
			}
			return internalError(c, err)
		}
		resp := listCommentsResponse{
			Comments: make([]apiComment, 0, len(page.Comments)),
			Total:    page.Total,
		}
		for _, comment := range page.Comments {
			resp.Comments = append(resp.Comments, toAPIComment(comment, page.Replies[comment.ID]))
		}
		return c.JSON(resp)
	})

	app.Get("/api/v1/podcasts/:id/likes", func(c *fiber.Ctx) error {
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		viewer, err := OptionalAuthenticateToken(c, userService)
		if err != nil {
			return respondAuthError(c, err)
		}
		var viewerID int64
		if viewer != nil {
			viewerID = viewer.ID
		}
		count, liked, err := podcastService.Likes(c.Context(), podcastID, viewerID)
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(likesResponse{Likes: count, Liked: liked})
	})

	app.Get("/api/v1/categories", func(c *fiber.Ctx) error {
		categories, err := podcastService.Categories(c.Context())
		if err != nil {
			return internalError(c, err)
		}
		resp := listCategoriesResponse{
			Categories: make([]apiCategory, 0, len(categories)),
		}
		for _, category := range categories {
			resp.Categories = append(resp.Categories, toAPICategory(category))
		}
		return c.JSON(resp)
	})

	api := app.Group("/api/v1", AuthMiddleware(userService))

	api.Get("/auth/me", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		return c.JSON(getCurrentUserResponse{
			User: toAPIUser(user),
		})
	})

	api.Post("/podcasts", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		input, err := parseCreatePodcastForm(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		defer input.close()

		created, err := podcastService.Create(c.Context(), user, input.CreatePodcastInput)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidTitle):
				return badRequest(c, "invalid title")
			case errors.Is(err, service.ErrInvalidAudio):
				return badRequest(c, "audio file is required")
			case errors.Is(err, service.ErrUnknownCategory):
				return badRequest(c, "unknown category")
			default:
				return internalError(c, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(toAPIPodcast(deps, created, nil))
	})

	api.Delete("/podcasts/:id", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		if err := podcastService.Delete(c.Context(), user, podcastID); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return notFound(c, "podcast not found")
			case errors.Is(err, service.ErrNotOwner):
				return forbidden(c, "not the podcast owner")
			default:
				return internalError(c, err)
			}
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/podcasts/:id/track", trackHandler(listenService))
	api.Get("/podcasts/:id/last-position", lastPositionHandler(listenService))

	api.Get("/users/me/history", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("pageSize", "50")))
		entries, err := listenService.History(c.Context(), user.ID, limit)
		if err != nil {
			return internalError(c, err)
		}
		resp := historyResponse{
			History: make([]historyEntryResponse, 0, len(entries)),
		}
		for _, entry := range entries {
			resp.History = append(resp.History, historyEntryResponse{
				Podcast:      toAPIPodcast(deps, entry.Podcast, nil),
				TimeListened: entry.Record.TimeListened,
				TrackedAt:    formatTime(entry.Record.TrackedAt),
			})
		}
		return c.JSON(resp)
	})

	api.Post("/podcasts/:id/like", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		count, err := podcastService.Like(c.Context(), podcastID, user.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "podcast not found")
			}
			return internalError(c, err)
		}
		return c.JSON(likesResponse{Likes: count, Liked: true})
	})

	api.Delete("/podcasts/:id/like", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		count, err := podcastService.Unlike(c.Context(), podcastID, user.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "podcast not found")
			}
			return internalError(c, err)
		}
		return c.JSON(likesResponse{Likes: count, Liked: false})
	})

	api.Post("/podcasts/:id/comments", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}
		var req createCommentRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		comment, err := commentService.Add(c.Context(), podcastID, user.ID, req.ParentID, req.Content)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidComment):
				return badRequest(c, "invalid comment")
			case errors.Is(err, service.ErrUnknownParent):
				return badRequest(c, "unknown parent comment")
			case errors.Is(err, sql.ErrNoRows):
				return notFound(c, "podcast not found")
			default:
				return internalError(c, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(toAPIComment(comment, 0))
	})

	api.Delete("/comments/:id", func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		commentID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid comment id")
		}
		if err := commentService.Delete(c.Context(), user, commentID); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return notFound(c, "comment not found")
			case errors.Is(err, service.ErrNotOwner):
				return forbidden(c, "not the comment owner")
			default:
				return internalError(c, err)
			}
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/categories", AdminOnly(), func(c *fiber.Ctx) error {
		var req createCategoryRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		category, err := podcastService.CreateCategory(c.Context(), req.DisplayName, req.Description)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCategoryName):
				return badRequest(c, "invalid category name")
			case errors.Is(err, service.ErrCategoryExists):
				return conflict(c, "category already exists")
			default:
				return internalError(c, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(toAPICategory(category))
	})

	api.Delete("/categories/:id", AdminOnly(), func(c *fiber.Ctx) error {
		categoryID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid category id")
		}
		if err := podcastService.DeleteCategory(c.Context(), categoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "category not found")
			}
			return internalError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

func listPodcastsHandler(deps RouterDeps, byEngagement bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input := service.ListPodcastsInput{
			Search: strings.TrimSpace(c.Query("q")),
			Filter: c.Query("filter", ""),
		}
		if raw := strings.TrimSpace(c.Query("category")); raw != "" {
			categoryID, err := parseID(raw)
			if err != nil {
				return badRequest(c, "invalid category")
			}
			input.CategoryID = categoryID
		}
		if raw := strings.TrimSpace(c.Query("pageSize")); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return badRequest(c, "invalid pageSize")
			}
			input.Limit = limit
		}

		var (
			podcasts   []models.Podcast
			categories map[int64][]models.Category
			err        error
		)
		if byEngagement {
			podcasts, categories, err = deps.Podcasts.Discover(c.Context(), input)
		} else {
			podcasts, categories, err = deps.Podcasts.List(c.Context(), input)
		}
		if err != nil {
			return badRequest(c, err.Error())
		}

		resp := listPodcastsResponse{
			Podcasts: make([]apiPodcast, 0, len(podcasts)),
		}
		for _, podcast := range podcasts {
			if !podcast.Published {
				continue
			}
			resp.Podcasts = append(resp.Podcasts, toAPIPodcast(deps, podcast, categories[podcast.ID]))
		}
		return c.JSON(resp)
	}
}

type createPodcastForm struct {
	service.CreatePodcastInput
	audioFile multipart.File
}

func (f *createPodcastForm) close() {
	if f.audioFile != nil {
		_ = f.audioFile.Close()
	}
}

func parseCreatePodcastForm(c *fiber.Ctx) (*createPodcastForm, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("multipart form is required")
	}

	input := &createPodcastForm{}
	input.Title = firstFormValue(form, "title")
	input.Description = firstFormValue(form, "description")
	if raw := firstFormValue(form, "published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid published value")
		}
		input.Published = published
	}
	for _, raw := range strings.Split(firstFormValue(form, "categories"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		categoryID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid category id %q", raw)
		}
		input.CategoryIDs = append(input.CategoryIDs, categoryID)
	}

	audioHeaders := form.File["audio"]
	if len(audioHeaders) == 0 {
		return nil, fmt.Errorf("audio file is required")
	}
	audioHeader := audioHeaders[0]
	audioFile, err := audioHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open audio upload: %w", err)
	}
	input.audioFile = audioFile
	input.Audio = audioFile
	input.AudioFilename = audioHeader.Filename
	input.AudioSize = audioHeader.Size
	input.AudioType = audioHeader.Header.Get(fiber.HeaderContentType)

	if thumbHeaders := form.File["thumbnail"]; len(thumbHeaders) > 0 {
		thumbHeader := thumbHeaders[0]
		thumbFile, err := thumbHeader.Open()
		if err != nil {
			input.close()
			return nil, fmt.Errorf("open thumbnail upload: %w", err)
		}
		data, err := io.ReadAll(thumbFile)
		if err != nil {
			_ = thumbFile.Close()
			input.close()
			return nil, fmt.Errorf("read thumbnail upload: %w", err)
		}
		_ = thumbFile.Close()
		input.Thumbnail = data
		input.ThumbnailName = thumbHeader.Filename
		input.ThumbnailType = thumbHeader.Header.Get(fiber.HeaderContentType)
	}

	return input, nil
}

func firstFormValue(form *multipart.Form, key string) string {
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func toAPIPodcast(deps RouterDeps, podcast models.Podcast, categories []models.Category) apiPodcast {
	apiCategories := make([]apiCategory, 0, len(categories))
	for _, category := range categories {
		apiCategories = append(apiCategories, toAPICategory(category))
	}

	descriptionHTML := ""
	if deps.Markdown != nil && podcast.Description != "" {
		if html, err := deps.Markdown.RenderHTML(podcast.Description); err == nil {
			descriptionHTML = html
		}
	}

	thumbnailURL := ""
	if podcast.ThumbnailKey != "" {
		thumbnailURL = fmt.Sprintf("%s/api/v1/podcasts/%d/thumbnail", deps.Config.BaseURL, podcast.ID)
	}

	return apiPodcast{
		Name:            podcast.Name(),
		Title:           podcast.Title,
		Slug:            podcast.Slug,
		Description:     podcast.Description,
		DescriptionHTML: descriptionHTML,
		Author:          "users/" + models.Int64ToString(podcast.AuthorID),
		Duration:        podcast.Duration,
		Published:       podcast.Published,
		StreamURL:       fmt.Sprintf("%s/api/v1/podcasts/%d/stream", deps.Config.BaseURL, podcast.ID),
		ThumbnailURL:    thumbnailURL,
		Categories:      apiCategories,
		CreateTime:      formatMaybeTime(podcast.CreateTime),
	}
}

func toAPIComment(comment models.Comment, replyCount int64) apiComment {
	return apiComment{
		Name:       "comments/" + models.Int64ToString(comment.ID),
		Creator:    "users/" + models.Int64ToString(comment.UserID),
		ParentID:   comment.ParentID,
		Content:    comment.Content,
		ReplyCount: replyCount,
		CreateTime: formatTime(comment.CreateTime),
	}
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty id")
	}
	return strconv.ParseInt(raw, 10, 64)
}
