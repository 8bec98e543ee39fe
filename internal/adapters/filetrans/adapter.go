package filetrans

import (
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
	"github.com/ncecere/asr_gateway/internal/requestctx"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
const defaultPollInterval = 3 * time.Second

const (
	asyncHeader   = "X-DashScope-Async"
	resolveHeader = "X-DashScope-OssResourceResolve"
)

const (
	taskStatusPending   = "PENDING"
	taskStatusRunning   = "RUNNING"
	taskStatusSucceeded = "SUCCEEDED"
	taskStatusFailed    = "FAILED"
)

// SleepFunc suspends between status polls. Injectable so tests can run
// many poll iterations without real delay.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures the file-transcription task adapter.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Sleep        SleepFunc
}

// Adapter speaks the submit-and-poll task protocol. The protocol only
// accepts object-store URIs and reports no token usage; results always
// carry zero-filled tokens.
type Adapter struct {
	client       *http.Client
	baseURL      string
	pollInterval time.Duration
	sleep        SleepFunc
}

func New(opts Options) *Adapter {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 300 * time.Second}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Adapter{
		client:       opts.HTTPClient,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		pollInterval: opts.PollInterval,
		sleep:        opts.Sleep,
	}
}

// Transcribe submits one task, polls it to a terminal state, and fetches
// the result document. The poll loop has no upper bound on attempts: task
// lifetimes routinely exceed any single HTTP timeout, so only each status
// check is bounded.
func (a *Adapter) Transcribe(ctx context.Context, req models.TranscriptionRequest) (models.TranscriptionResult, error) {
	start := time.Now()

	taskID, err := a.submit(ctx, req)
	if err != nil {
		return models.TranscriptionResult{}, err
	}
	slog.Debug("transcription task submitted", "task_id", taskID, "model", req.Spec.BaseModel)

	for {
		output, err := a.taskStatus(ctx, taskID)
		if err != nil {
			return models.TranscriptionResult{}, err
		}

		switch output.TaskStatus {
		case taskStatusPending, taskStatusRunning:
			if err := a.sleep(ctx, a.pollInterval); err != nil {
				return models.TranscriptionResult{}, err
			}
		case taskStatusFailed:
			return models.TranscriptionResult{}, &models.TaskError{Code: output.Code, Message: output.Message}
		case taskStatusSucceeded:
			return a.fetchResult(ctx, output.Result.TranscriptionURL, start)
		default:
			return models.TranscriptionResult{}, fmt.Errorf("%w: %q", models.ErrUnknownTaskStatus, output.TaskStatus)
		}
	}
}

func (a *Adapter) submit(ctx context.Context, req models.TranscriptionRequest) (string, error) {
	params := taskParameters{
		EnableITN:   req.Spec.EnableITN,
		EnableWords: true,
		ChannelID:   []int{0},
		Language:    req.Spec.Language,
	}
	body, err := json.Marshal(taskRequest{
		Model:      req.Spec.BaseModel,
		Input:      taskInput{FileURL: req.Audio.Payload()},
		Parameters: params,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/services/audio/asr/transcription", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", requestctx.Credential(ctx))
	httpReq.Header.Set(asyncHeader, "enable")
	httpReq.Header.Set(resolveHeader, resolveFlag(req.Audio.IsRemote()))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp)
	}

	var payload taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", models.ErrMalformedResponse, err)
	}
	if payload.Output.TaskID == "" {
		return "", fmt.Errorf("%w: submit response carries no task id", models.ErrMalformedResponse)
	}
	return payload.Output.TaskID, nil
}

func (a *Adapter) taskStatus(ctx context.Context, taskID string) (taskOutput, error) {
	endpoint := fmt.Sprintf("%s/tasks/%s", a.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return taskOutput{}, err
	}
	req.Header.Set("Authorization", requestctx.Credential(ctx))
	req.Header.Set(asyncHeader, "enable")

	resp, err := a.client.Do(req)
	if err != nil {
		return taskOutput{}, fmt.Errorf("poll task: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return taskOutput{}, decodeAPIError(resp)
	}

	var payload taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return taskOutput{}, fmt.Errorf("%w: decode task status: %v", models.ErrMalformedResponse, err)
	}
	return payload.Output, nil
}

func (a *Adapter) fetchResult(ctx context.Context, resultURL string, start time.Time) (models.TranscriptionResult, error) {
	if resultURL == "" {
		return models.TranscriptionResult{}, fmt.Errorf("%w: succeeded task carries no result url", models.ErrMalformedResponse)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return models.TranscriptionResult{}, err
	}
	req.Header.Set("Authorization", requestctx.Credential(ctx))

	resp, err := a.client.Do(req)
	if err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.TranscriptionResult{}, decodeAPIError(resp)
	}

	var doc resultDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("%w: decode result document: %v", models.ErrMalformedResponse, err)
	}
	if len(doc.Transcripts) == 0 {
		return models.TranscriptionResult{}, fmt.Errorf("%w: result document has no transcripts", models.ErrMalformedResponse)
	}

	transcript := doc.Transcripts[0]
	logRTF(time.Since(start), transcript.ContentDurationMS, transcript.Text)

	// This protocol carries no token accounting.
	return models.TranscriptionResult{Text: transcript.Text}, nil
}

func logRTF(elapsed time.Duration, durationMS int64, text string) {
	if durationMS <= 0 {
		slog.Debug("transcription task complete", "elapsed", elapsed, "text_len", len(text))
		return
	}
	slog.Debug("transcription task complete",
		"elapsed", elapsed,
		"audio_seconds", float64(durationMS)/1000,
		"rtf", elapsed.Seconds()/(float64(durationMS)/1000),
		"text_len", len(text))
}

func resolveFlag(remote bool) string {
	if remote {
		return "enable"
	}
	return "disable"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type taskRequest struct {
	Model      string         `json:"model"`
	Input      taskInput      `json:"input"`
	Parameters taskParameters `json:"parameters"`
}

type taskInput struct {
	FileURL string `json:"file_url"`
}

type taskParameters struct {
	EnableITN   bool   `json:"enable_itn"`
	EnableWords bool   `json:"enable_words"`
	ChannelID   []int  `json:"channel_id"`
	Language    string `json:"language,omitempty"`
}

type taskResponse struct {
	Output taskOutput `json:"output"`
}

type taskOutput struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Result     struct {
		TranscriptionURL string `json:"transcription_url"`
	} `json:"result"`
}

type resultDocument struct {
	Transcripts []struct {
		ChannelID         int    `json:"channel_id"`
		Text              string `json:"text"`
		ContentDurationMS int64  `json:"content_duration_in_milliseconds"`
	} `json:"transcripts"`
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &models.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
