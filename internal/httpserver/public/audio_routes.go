package public

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/asr_gateway/internal/app"
	"github.com/ncecere/asr_gateway/internal/httpserver/httputil"
	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/services/transcription"
)

type asrHandler struct {
	container *app.Container
}

func (h *asrHandler) audioTranscriptions(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "multipart form required")
	}
	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		return httputil.WriteError(c, fiber.StatusBadRequest, "file is required")
	}
	fh := fileHeaders[0]
	src, err := fh.Open()
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "failed to open file")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "failed to read file")
	}

	stream := false
	if val := strings.TrimSpace(c.FormValue("stream")); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "stream must be a boolean")
		}
		stream = parsed
	}

	req := transcription.Request{
		Model:    strings.TrimSpace(c.FormValue("model")),
		Language: strings.TrimSpace(c.FormValue("language")),
		Prompt:   c.FormValue("prompt"),
		Audio: models.AudioInput{
			Data:        data,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
		},
	}

	if stream {
		return h.streamTranscription(c, req)
	}
	return h.invokeTranscription(c, req)
}

func (h *asrHandler) invokeTranscription(c *fiber.Ctx, req transcription.Request) error {
	ctx := c.UserContext()
	model, backend := h.container.Transcription.Labels(req.Model)

	start := time.Now()
	result, err := h.container.Transcription.Transcribe(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		h.container.Observability.RecordTranscription(model, backend, "error", elapsed)
		return writeServiceError(c, err)
	}

	h.container.Observability.RecordTranscription(model, backend, "ok", elapsed)
	h.container.Observability.RecordTokens(model, backend, int64(result.Usage.InputTokens), int64(result.Usage.OutputTokens))

	return c.JSON(transcriptionResponse{
		Text:  result.Text,
		Usage: convertUsage(result.Usage),
	})
}

func (h *asrHandler) streamTranscription(c *fiber.Ctx, req transcription.Request) error {
	ctx := c.UserContext()
	model, backend := h.container.Transcription.Labels(req.Model)

	events, cancel, err := h.container.Transcription.TranscribeStream(ctx, req)
	if err != nil {
		return writeServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	streamStart := time.Now()
	obs := h.container.Observability

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			if err := cancel(); err != nil {
				slog.Error("release stream", "error", err)
			}
		}()

		status := "error"
		defer func() {
			obs.RecordTranscription(model, backend, status, time.Since(streamStart))
		}()

		for event := range events {
			switch event.Type {
			case models.StreamEventDelta:
				if !writeSSE(w, streamDeltaFrame{Type: "transcript.text.delta", Delta: event.Delta}) {
					return
				}
			case models.StreamEventDone:
				if !writeSSE(w, streamDoneFrame{
					Type:  "transcript.text.done",
					Text:  event.Text,
					Usage: convertUsage(event.Usage),
				}) {
					return
				}
				obs.RecordTokens(model, backend, int64(event.Usage.InputTokens), int64(event.Usage.OutputTokens))
				status = "ok"
				return
			case models.StreamEventError:
				// Deltas already written stay delivered; the stream just
				// ends without a done frame.
				slog.Error("transcription stream aborted", "model", model, "error", event.Err)
				return
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	if _, err := w.WriteString("data: "); err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		return false
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return false
	}
	return w.Flush() == nil
}

// writeServiceError maps the service error taxonomy onto the inbound
// contract: caller-input classes become 400, backend statuses pass
// through verbatim, everything else is a bad gateway.
func writeServiceError(c *fiber.Ctx, err error) error {
	var upstream *models.UpstreamError
	var taskErr *models.TaskError
	switch {
	case errors.Is(err, models.ErrEmptyAudio),
		errors.Is(err, models.ErrUnsupportedMediaType),
		errors.Is(err, models.ErrUnsupportedModel),
		errors.Is(err, models.ErrStreamingUnsupported):
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &upstream):
		return c.Status(upstream.StatusCode).SendString(upstream.Body)
	case errors.As(err, &taskErr):
		return httputil.WriteError(c, fiber.StatusBadGateway, taskErr.Error())
	default:
		return httputil.WriteError(c, fiber.StatusBadGateway, err.Error())
	}
}

type transcriptionResponse struct {
	Text  string       `json:"text"`
	Usage usagePayload `json:"usage"`
}

type usagePayload struct {
	Type              string            `json:"type"`
	InputTokens       int32             `json:"input_tokens"`
	InputTokenDetails inputTokenDetails `json:"input_token_details"`
	OutputTokens      int32             `json:"output_tokens"`
	TotalTokens       int32             `json:"total_tokens"`
}

type inputTokenDetails struct {
	TextTokens  int32 `json:"text_tokens"`
	AudioTokens int32 `json:"audio_tokens"`
}

func convertUsage(u models.Usage) usagePayload {
	return usagePayload{
		Type:        "tokens",
		InputTokens: u.InputTokens,
		InputTokenDetails: inputTokenDetails{
			TextTokens:  u.TextTokens,
			AudioTokens: u.AudioTokens,
		},
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
}

type streamDeltaFrame struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type streamDoneFrame struct {
	Type  string       `json:"type"`
	Text  string       `json:"text"`
	Usage usagePayload `json:"usage"`
}
