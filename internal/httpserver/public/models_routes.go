package public

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (h *asrHandler) listModels(c *fiber.Ctx) error {
	created := time.Now().Unix()
	list := modelList{Object: "list", Data: []modelEntry{}}
	for _, id := range h.container.Transcription.Models() {
		list.Data = append(list.Data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "dashscope",
		})
	}
	return c.JSON(list)
}
