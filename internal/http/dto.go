package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	User        apiUser `json:"user"`
	AccessToken string  `json:"accessToken"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type apiUser struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	CreateTime string `json:"createTime,omitempty"`
}

type getCurrentUserResponse struct {
	User apiUser `json:"user"`
}

type listPodcastsResponse struct {
	Podcasts []apiPodcast `json:"podcasts"`
}

type apiPodcast struct {
	Name            string        `json:"name"`
	Title           string        `json:"title"`
	Slug            string        `json:"slug"`
	Description     string        `json:"description,omitempty"`
	DescriptionHTML string        `json:"descriptionHtml,omitempty"`
	Author          string        `json:"author"`
	Duration        int64         `json:"duration"`
	Published       bool          `json:"published"`
	StreamURL       string        `json:"streamUrl"`
	ThumbnailURL    string        `json:"thumbnailUrl,omitempty"`
	Categories      []apiCategory `json:"categories,omitempty"`
	CreateTime      string        `json:"createTime,omitempty"`
}

type apiCategory struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

type createCategoryRequest struct {
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

type listCategoriesResponse struct {
	Categories []apiCategory `json:"categories"`
}

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId"`
}

type apiComment struct {
	Name       string `json:"name"`
	Creator    string `json:"creator"`
	ParentID   *int64 `json:"parentId,omitempty"`
	Content    string `json:"content"`
	ReplyCount int64  `json:"replyCount"`
	CreateTime string `json:"createTime,omitempty"`
}

type listCommentsResponse struct {
	Comments []apiComment `json:"comments"`
	Total    int64        `json:"total"`
}

type likesResponse struct {
	Likes int64 `json:"likes"`
	Liked bool  `json:"liked"`
}

type trackRequest struct {
	TimeListened *float64 `json:"time_listened"`
}

type trackResponse struct {
	Message      string `json:"message"`
	TimeListened int64  `json:"time_listened"`
}

type lastPositionResponse struct {
	LastPosition int64   `json:"last_position"`
	TrackedAt    *string `json:"tracked_at"`
	HasListened  bool    `json:"has_listened"`
}

type historyEntryResponse struct {
	Podcast      apiPodcast `json:"podcast"`
	TimeListened int64      `json:"time_listened"`
	TrackedAt    string     `json:"tracked_at"`
}

type historyResponse struct {
	History []historyEntryResponse `json:"history"`
}

type profileResponse struct {
	Version string `json:"version"`
}

type errorEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func errorJSON(c *fiber.Ctx, status int, code string, message string) error {
	return c.Status(status).JSON(errorEnvelope{
		Code:      code,
		Message:   message,
		RequestID: requestID(c),
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

func badRequest(c *fiber.Ctx, message string) error {
	return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", message)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message)
}

func forbidden(c *fiber.Ctx, message string) error {
	return errorJSON(c, fiber.StatusForbidden, "FORBIDDEN", message)
}

func notFound(c *fiber.Ctx, message string) error {
	return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", message)
}

func conflict(c *fiber.Ctx, message string) error {
	return errorJSON(c, fiber.StatusConflict, "CONFLICT", message)
}

func internalError(c *fiber.Ctx, err error) error {
	return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL", err.Error())
}

func toAPIUser(user models.User) apiUser {
	name := ""
	if user.ID > 0 {
		name = user.Name()
	}
	return apiUser{
		Name:       name,
		Email:      user.Email,
		Role:       strings.ToUpper(strings.TrimSpace(user.Role)),
		CreateTime: formatMaybeTime(user.CreateTime),
	}
}

func toAPICategory(category models.Category) apiCategory {
	return apiCategory{
		Name:        "categories/" + models.Int64ToString(category.ID),
		DisplayName: category.Name,
		Description: category.Description,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatMaybeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
