package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/auth"
	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
)

// AuthHandler serves account creation and identity endpoints.
type AuthHandler struct {
	users  user.Repository
	secret string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAuthHandler creates an auth handler issuing tokens with the given secret
// and lifetime.
func NewAuthHandler(users user.Repository, secret string, ttl time.Duration, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, ttl: ttl, log: logger}
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
}

// Register handles POST /api/v1/auth/register. It creates an account and
// returns an access token for it.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body RegisterRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, protocol.NewError(protocol.CodeInvalidName))
	}

	u, err := user.New(body.Username)
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	if err := h.users.Save(c, u); err != nil {
		h.log.Error().Err(err).Str("handler", "auth").Msg("Save user failed")
		return httputil.Fail(c, protocol.DataError(protocol.DataWrite))
	}

	token, err := auth.NewAccessToken(u.ID, h.secret, h.ttl)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "auth").Msg("Token signing failed")
		return httputil.Fail(c, protocol.NewError(protocol.CodeInternal))
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{
		"user":  u,
		"token": token,
	})
}

// Me handles GET /api/v1/users/me.
func (h *AuthHandler) Me(c fiber.Ctx) error {
	caller, ok := callerID(c)
	if !ok {
		return httputil.Fail(c, protocol.NewError(protocol.CodeNotAuthenticated))
	}
	u, err := h.users.Load(c, caller)
	if err != nil {
		return httputil.Fail(c, gateway.WireError(err))
	}
	return httputil.Success(c, u)
}
