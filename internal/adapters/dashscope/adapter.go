package dashscope

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/providers/streamutil"
	"github.com/ncecere/asr_gateway/internal/requestctx"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// resolveHeader tells the backend whether the audio reference is an
// object-store URI it has to resolve server-side.
const resolveHeader = "X-DashScope-OssResourceResolve"

// Options configures the compatible-mode adapter.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter speaks the chat-completion shaped transcription protocol, both
// single-shot and SSE streaming.
type Adapter struct {
	client  *http.Client
	baseURL string
}

func New(opts Options) *Adapter {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 300 * time.Second}
	}
	return &Adapter{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Transcribe performs a single-shot transcription request.
func (a *Adapter) Transcribe(ctx context.Context, req models.TranscriptionRequest) (models.TranscriptionResult, error) {
	start := time.Now()
	resp, err := a.send(ctx, buildChatRequest(req, false))
	if err != nil {
		return models.TranscriptionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.TranscriptionResult{}, decodeAPIError(resp)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("%w: decode completion: %v", models.ErrMalformedResponse, err)
	}
	if len(payload.Choices) != 1 {
		return models.TranscriptionResult{}, fmt.Errorf("%w: expected 1 choice, got %d", models.ErrMalformedResponse, len(payload.Choices))
	}

	elapsed := time.Since(start)
	logRTF(elapsed, payload.Usage.Seconds, payload.Choices[0].Message.Content)

	return models.TranscriptionResult{
		Text:  payload.Choices[0].Message.Content,
		Usage: payload.Usage.normalize(),
	}, nil
}

// TranscribeStream performs the same request with streaming enabled and
// re-emits the backend's delta frames as normalized stream events.
func (a *Adapter) TranscribeStream(ctx context.Context, req models.TranscriptionRequest) (<-chan models.StreamEvent, func() error, error) {
	start := time.Now()
	resp, err := a.send(ctx, buildChatRequest(req, true))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, nil, decodeAPIError(resp)
	}

	forward := func(ctx context.Context, yield streamutil.YieldFunc) {
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)

		var text strings.Builder
		var usage usagePayload
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				_ = yield(models.ErrorEvent(fmt.Errorf("%w: read stream: %v", models.ErrMalformedResponse, err)))
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				logRTF(time.Since(start), usage.Seconds, text.String())
				_ = yield(models.DoneEvent(text.String(), usage.normalize()))
				return
			}

			var frame streamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				_ = yield(models.ErrorEvent(fmt.Errorf("%w: decode frame: %v", models.ErrMalformedResponse, err)))
				return
			}
			if frame.Usage != nil {
				usage = *frame.Usage
			}
			if len(frame.Choices) == 0 {
				continue
			}
			delta := frame.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			text.WriteString(delta)
			if !yield(models.DeltaEvent(delta)) {
				return
			}
		}
	}

	cancel := func() error {
		resp.Body.Close()
		return nil
	}
	events, closeFn := streamutil.Forward(ctx, cancel, forward)
	return events, closeFn, nil
}

func (a *Adapter) send(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/chat/completions", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", requestctx.Credential(ctx))
	req.Header.Set(resolveHeader, resolveFlag(payload.remote))
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return a.client.Do(req)
}

func resolveFlag(remote bool) string {
	if remote {
		return "enable"
	}
	return "disable"
}

func logRTF(elapsed time.Duration, seconds float64, text string) {
	if seconds <= 0 {
		slog.Debug("transcription complete", "elapsed", elapsed, "text_len", len(text))
		return
	}
	slog.Debug("transcription complete",
		"elapsed", elapsed,
		"audio_seconds", seconds,
		"rtf", elapsed.Seconds()/seconds,
		"text_len", len(text))
}

func buildChatRequest(req models.TranscriptionRequest, stream bool) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if req.Prompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Prompt})
	}
	messages = append(messages, chatMessage{
		Role: "user",
		Content: []inputAudioPart{{
			Type:       "input_audio",
			InputAudio: inputAudioRef{Data: req.Audio.Payload()},
		}},
	})

	body := chatRequest{
		Model:    req.Spec.BaseModel,
		Messages: messages,
		remote:   req.Audio.IsRemote(),
	}
	if req.Spec.Language != "" || req.Spec.EnableITN {
		body.ASROptions = &asrOptions{
			Language:  req.Spec.Language,
			EnableITN: req.Spec.EnableITN,
		}
	}
	if stream {
		body.Stream = true
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	ASROptions    *asrOptions    `json:"asr_options,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`

	// remote mirrors the staging kind into the resolve header; it is not
	// part of the request body.
	remote bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type inputAudioPart struct {
	Type       string        `json:"type"`
	InputAudio inputAudioRef `json:"input_audio"`
}

type inputAudioRef struct {
	Data string `json:"data"`
}

type asrOptions struct {
	Language  string `json:"language,omitempty"`
	EnableITN bool   `json:"enable_itn,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   usagePayload `json:"usage"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
}

type usagePayload struct {
	PromptTokens        int32   `json:"prompt_tokens"`
	CompletionTokens    int32   `json:"completion_tokens"`
	TotalTokens         int32   `json:"total_tokens"`
	Seconds             float64 `json:"seconds"`
	PromptTokensDetails struct {
		TextTokens  int32 `json:"text_tokens"`
		AudioTokens int32 `json:"audio_tokens"`
	} `json:"prompt_tokens_details"`
}

func (u usagePayload) normalize() models.Usage {
	return models.Usage{
		InputTokens:  u.PromptTokens,
		TextTokens:   u.PromptTokensDetails.TextTokens,
		AudioTokens:  u.PromptTokensDetails.AudioTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &models.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
