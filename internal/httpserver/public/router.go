package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/asr_gateway/internal/app"
)

// Register wires up the OpenAI-compatible public API routes.
func Register(fiberApp *fiber.App, container *app.Container) {
	group := fiberApp.Group("/v1", credentialPassthrough())
	handler := &asrHandler{container: container}
	group.Get("/models", handler.listModels)
	group.Post("/audio/transcriptions", handler.audioTranscriptions)
}
