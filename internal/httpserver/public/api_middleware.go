package public

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ncecere/asr_gateway/internal/httpserver/httputil"
	"github.com/ncecere/asr_gateway/internal/requestctx"
)

// credentialPassthrough requires an Authorization header and threads it
// through the request context. The gateway never inspects the credential;
// the selected backend validates it.
func credentialPassthrough() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "authorization header required")
		}

		rc := &requestctx.Context{
			RequestID:     uuid.New(),
			Authorization: raw,
		}
		c.SetUserContext(requestctx.WithContext(userContext(c), rc))
		return c.Next()
	}
}

func userContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
