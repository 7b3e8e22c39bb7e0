// Package api serves the HTTP surface: hub and channel management,
// membership operations, permission settings, message history, and search.
// Handlers check permissions against hub snapshots, persist through the
// repositories, and emit the resulting gateway events.
package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/auth"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// userIDKey is the Locals key carrying the authenticated user id.
const userIDKey = "userID"

// RequireAuth returns middleware that validates the Bearer token and stores
// the user id in Locals.
func RequireAuth(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
		}

		userID, err := auth.ValidateAccessToken(token, secret)
		if err != nil {
			return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// callerID returns the authenticated user id set by RequireAuth.
func callerID(c fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(userIDKey).(uuid.UUID)
	return id, ok
}

// paramID parses a UUID route parameter.
func paramID(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}
