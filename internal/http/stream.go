package http

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/storage"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

// streamCacheControl is safe because audio blobs are written once under a
// random key and never mutated in place.
const streamCacheControl = "public, max-age=31536000"

// streamPlan is the resolved answer to a stream request before any byte of
// the blob is read: which status to send and which window of the object to
// serve.
type streamPlan struct {
	status int
	start  int64
	end    int64
	length int64
	total  int64
}

// buildStreamPlan maps a Range header and the object size onto a response
// shape. Unsupported range forms degrade to a full 200 rather than failing
// the request; only a well-formed range that lies beyond the object yields
// 416.
func buildStreamPlan(rangeHeader string, size int64) streamPlan {
	start, end, hasRange, err := parseSingleByteRange(rangeHeader, size)
	switch {
	case errors.Is(err, errRangeUnsatisfiable):
		return streamPlan{status: fiber.StatusRequestedRangeNotSatisfiable, total: size}
	case err != nil, !hasRange:
		return streamPlan{status: fiber.StatusOK, start: 0, end: size - 1, length: size, total: size}
	default:
		return streamPlan{status: fiber.StatusPartialContent, start: start, end: end, length: end - start + 1, total: size}
	}
}

func (p streamPlan) contentRange() string {
	if p.status == fiber.StatusRequestedRangeNotSatisfiable {
		return fmt.Sprintf("bytes */%d", p.total)
	}
	return fmt.Sprintf("bytes %d-%d/%d", p.start, p.end, p.total)
}

func streamHandler(podcastService *service.PodcastService, listenService *service.ListenService, userService *service.UserService, blobs storage.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
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

		listener, err := OptionalAuthenticateToken(c, userService)
		if err != nil {
			return respondAuthError(c, err)
		}
		if !visibleTo(podcast, listener) {
			return notFound(c, "podcast not found")
		}

		info, err := blobs.Stat(c.Context(), podcast.AudioKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound(c, "audio not found")
			}
			return internalError(c, err)
		}

		contentType := podcast.AudioType
		if contentType == "" {
			contentType = info.ContentType
		}
		if contentType == "" {
			contentType = "audio/mpeg"
		}

		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderCacheControl, streamCacheControl)
		if info.ETag != "" {
			c.Set(fiber.HeaderETag, info.ETag)
		}

		if listener != nil {
			record, hasListened, err := listenService.LastPosition(c.Context(), listener.ID, podcast.ID)
			if err != nil {
				return internalError(c, err)
			}
			if hasListened {
				c.Set("X-Last-Position", models.Int64ToString(record.TimeListened))
			}
		}

		plan := buildStreamPlan(c.Get(fiber.HeaderRange), info.Size)
		switch plan.status {
		case fiber.StatusRequestedRangeNotSatisfiable:
			c.Set(fiber.HeaderContentRange, plan.contentRange())
			return errorJSON(c, fiber.StatusRequestedRangeNotSatisfiable, "RANGE_NOT_SATISFIABLE", "requested range not satisfiable")
		case fiber.StatusPartialContent:
			rc, err := blobs.OpenRange(c.Context(), podcast.AudioKey, plan.start, plan.end)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return notFound(c, "audio not found")
				}
				return internalError(c, err)
			}
			c.Set(fiber.HeaderContentRange, plan.contentRange())
			return c.Status(fiber.StatusPartialContent).SendStream(rc, int(plan.length))
		default:
			rc, err := blobs.Open(c.Context(), podcast.AudioKey)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return notFound(c, "audio not found")
				}
				return internalError(c, err)
			}
			return c.SendStream(rc, int(plan.length))
		}
	}
}

func thumbnailHandler(podcastService *service.PodcastService, userService *service.UserService, blobs storage.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
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
		if !visibleTo(podcast, viewer) || podcast.ThumbnailKey == "" {
			return notFound(c, "thumbnail not found")
		}

		info, err := blobs.Stat(c.Context(), podcast.ThumbnailKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound(c, "thumbnail not found")
			}
			return internalError(c, err)
		}
		rc, err := blobs.Open(c.Context(), podcast.ThumbnailKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound(c, "thumbnail not found")
			}
			return internalError(c, err)
		}

		contentType := podcast.ThumbnailType
		if contentType == "" {
			contentType = info.ContentType
		}
		if contentType != "" {
			c.Set(fiber.HeaderContentType, contentType)
		}
		c.Set(fiber.HeaderCacheControl, streamCacheControl)
		return c.SendStream(rc, int(info.Size))
	}
}

func trackHandler(listenService *service.ListenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}

		var req trackRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.TimeListened == nil {
			return badRequest(c, "time_listened is required")
		}

		result, err := listenService.Track(c.Context(), user.ID, podcastID, *req.TimeListened)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidListenTime):
				return badRequest(c, "time_listened must be a non-negative number")
			case errors.Is(err, sql.ErrNoRows):
				return notFound(c, "podcast not found")
			default:
				return internalError(c, err)
			}
		}

		resp := trackResponse{TimeListened: result.Record.TimeListened}
		switch result.Outcome {
		case store.UpsertCreated:
			resp.Message = "Listen time tracked"
			return c.Status(fiber.StatusCreated).JSON(resp)
		case store.UpsertUpdatedHigher:
			resp.Message = "Listen time updated"
			return c.JSON(resp)
		default:
			resp.Message = "Existing listen time is longer or equal"
			return c.JSON(resp)
		}
	}
}

func lastPositionHandler(listenService *service.ListenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		podcastID, err := parseID(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid podcast id")
		}

		record, hasListened, err := listenService.LastPosition(c.Context(), user.ID, podcastID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(c, "podcast not found")
			}
			return internalError(c, err)
		}

		resp := lastPositionResponse{HasListened: hasListened}
		if hasListened {
			resp.LastPosition = record.TimeListened
			trackedAt := formatTime(record.TrackedAt)
			resp.TrackedAt = &trackedAt
		}
		return c.JSON(resp)
	}
}

func visibleTo(podcast models.Podcast, viewer *models.User) bool {
	if podcast.Published {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == podcast.AuthorID || strings.EqualFold(viewer.Role, "ADMIN")
}
