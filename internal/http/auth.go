package http

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
)

const currentUserKey = "currentUser"

func AuthMiddleware(userService *service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := strings.TrimSpace(c.Get("Authorization"))
		if authz == "" {
			return unauthorized(c, "missing authorization")
		}

		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return unauthorized(c, "invalid authorization header")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		user, err := userService.AuthenticateToken(c.Context(), token)
		if err != nil {
			return respondAuthError(c, err)
		}
		c.Locals(currentUserKey, user)
		return c.Next()
	}
}

func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if !strings.EqualFold(user.Role, "ADMIN") {
			return forbidden(c, "admin role required")
		}
		return c.Next()
	}
}

func CurrentUser(c *fiber.Ctx) models.User {
	raw := c.Locals(currentUserKey)
	if raw == nil {
		return models.User{}
	}
	user, _ := raw.(models.User)
	return user
}

// respondAuthError maps a token resolution failure onto the wire: unknown or
// malformed tokens are a credential problem, anything else is a server fault
// and must not masquerade as one.
func respondAuthError(c *fiber.Ctx, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return unauthorized(c, "invalid access token")
	}
	return internalError(c, err)
}

// OptionalAuthenticateToken resolves the bearer token when one is present.
// An absent header is not an error; a malformed or unknown token is.
func OptionalAuthenticateToken(c *fiber.Ctx, userService *service.UserService) (*models.User, error) {
	authz := strings.TrimSpace(c.Get("Authorization"))
	if authz == "" {
		return nil, nil
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return nil, sql.ErrNoRows
	}
	token := strings.TrimSpace(authz[len("Bearer "):])
	user, err := userService.AuthenticateToken(c.Context(), token)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
