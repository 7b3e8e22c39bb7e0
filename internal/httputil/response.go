// Package httputil holds the response envelope and request logging shared by
// every HTTP handler.
package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/hubline-chat/hubline-server/internal/protocol"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error *protocol.Error `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends the wire error with its mapped HTTP status.
func Fail(c fiber.Ctx, wireErr *protocol.Error) error {
	return c.Status(wireErr.HTTPStatus()).JSON(ErrorResponse{Error: wireErr})
}
