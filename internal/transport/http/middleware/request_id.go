package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/trackdrop/backend/internal/core/services"
)

const requestIDLocal = "request_id"

// RequestID reuses the incoming header value or generates one, echoes it back
// and stores it on the user context for services.
func RequestID(header string) fiber.Handler {
	if header == "" {
		header = fiber.HeaderXRequestID
	}
	return func(c *fiber.Ctx) error {
		reqID := c.Get(header)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals(requestIDLocal, reqID)
		c.Set(header, reqID)
		c.SetUserContext(context.WithValue(c.UserContext(), services.RequestIDKey, reqID))
		return c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c *fiber.Ctx) string {
	if v, ok := c.Locals(requestIDLocal).(string); ok {
		return v
	}
	return ""
}
