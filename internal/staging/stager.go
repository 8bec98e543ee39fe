package staging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/ncecere/asr_gateway/internal/config"
	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/requestctx"
)

// base64MaxBytes is the largest raw payload that still fits the backend's
// 10 MiB transport limit after base64 expansion. Payloads at or above it
// are staged to object storage instead.
const base64MaxBytes = (10 * 1024 * 1024) / 1.334

// Stager decides how an uploaded audio blob is made available to the
// backend: inline as a base64 data URI, or uploaded to OSS under a signed
// policy and referenced by oss:// URI.
type Stager struct {
	client     *http.Client
	uploadsURL string
}

// New builds a stager against the configured upload-policy endpoint.
func New(cfg config.DashScopeConfig) *Stager {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Stager{
		client:     &http.Client{Timeout: timeout},
		uploadsURL: strings.TrimRight(cfg.APIBaseURL, "/") + "/uploads",
	}
}

// Stage consumes the uploaded audio exactly once and returns its
// backend-ready form. forceRemote skips the inline path for backends that
// only accept object-store URIs.
func (s *Stager) Stage(ctx context.Context, audio models.AudioInput, baseModel string, forceRemote bool) (models.StagedAudio, error) {
	if audio.Empty() {
		return models.StagedAudio{}, models.ErrEmptyAudio
	}

	mime, ext, err := resolveMediaType(audio)
	if err != nil {
		return models.StagedAudio{}, err
	}

	if !forceRemote && float64(len(audio.Data)) < base64MaxBytes {
		slog.Debug("staging audio inline", "size", len(audio.Data), "mime", mime)
		return models.InlineAudio(encodeDataURI(mime, audio.Data)), nil
	}

	slog.Debug("staging audio via oss", "size", len(audio.Data), "mime", mime, "model", baseModel)
	uri, err := s.uploadRemote(ctx, audio, baseModel, ext)
	if err != nil {
		return models.StagedAudio{}, err
	}
	return models.RemoteAudio(uri), nil
}

// encodeDataURI is a pure function of the bytes and resolved media type,
// so staging the same input twice yields identical URIs.
func encodeDataURI(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// resolveMediaType picks a MIME type and file extension for the upload:
// declared content type first, then the filename extension, then byte
// sniffing as a last resort.
func resolveMediaType(audio models.AudioInput) (string, string, error) {
	if ct := strings.TrimSpace(audio.ContentType); ct != "" {
		return ct, extensionFor(ct), nil
	}
	switch {
	case strings.HasSuffix(audio.Filename, ".wav"):
		return "audio/wav", ".wav", nil
	case strings.HasSuffix(audio.Filename, ".mp3"):
		return "audio/mpeg", ".mp3", nil
	}
	if detected := mimetype.Detect(audio.Data); detected.String() != "application/octet-stream" {
		return detected.String(), detected.Extension(), nil
	}
	return "", "", models.ErrUnsupportedMediaType
}

func extensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if i := strings.IndexByte(mime, '/'); i >= 0 && i+1 < len(mime) {
		return "." + mime[i+1:]
	}
	return ""
}

// uploadPolicy is the signed multipart-upload grant issued by the backend.
type uploadPolicy struct {
	UploadDir           string `json:"upload_dir"`
	UploadHost          string `json:"upload_host"`
	OSSAccessKeyID      string `json:"oss_access_key_id"`
	Signature           string `json:"signature"`
	Policy              string `json:"policy"`
	XOSSObjectACL       string `json:"x_oss_object_acl"`
	XOSSForbidOverwrite string `json:"x_oss_forbid_overwrite"`
}

func (s *Stager) uploadRemote(ctx context.Context, audio models.AudioInput, baseModel, ext string) (string, error) {
	policy, err := s.fetchUploadPolicy(ctx, baseModel)
	if err != nil {
		return "", err
	}
	return s.uploadToOSS(ctx, policy, audio, ext)
}

func (s *Stager) fetchUploadPolicy(ctx context.Context, baseModel string) (uploadPolicy, error) {
	endpoint := fmt.Sprintf("%s?%s", s.uploadsURL, url.Values{
		"action": []string{"getPolicy"},
		"model":  []string{baseModel},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return uploadPolicy{}, err
	}
	req.Header.Set("Authorization", requestctx.Credential(ctx))

	resp, err := s.client.Do(req)
	if err != nil {
		return uploadPolicy{}, fmt.Errorf("fetch upload policy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return uploadPolicy{}, readUpstreamError(resp)
	}

	var payload struct {
		Data uploadPolicy `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return uploadPolicy{}, fmt.Errorf("%w: decode upload policy: %v", models.ErrMalformedResponse, err)
	}
	return payload.Data, nil
}

func (s *Stager) uploadToOSS(ctx context.Context, policy uploadPolicy, audio models.AudioInput, ext string) (string, error) {
	filename := normalizedFilename(audio.Filename, ext)
	key := policy.UploadDir + "/" + filename

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{
		{"OSSAccessKeyId", policy.OSSAccessKeyID},
		{"Signature", policy.Signature},
		{"policy", policy.Policy},
		{"x-oss-object-acl", policy.XOSSObjectACL},
		{"x-oss-forbid-overwrite", policy.XOSSForbidOverwrite},
		{"key", key},
		{"success_action_status", "200"},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return "", err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, policy.UploadHost, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", readUpstreamError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return "oss://" + key, nil
}

// normalizedFilename keeps the upload's root name and swaps in the
// resolved extension. Uploads without a filename get a generated one.
func normalizedFilename(original, ext string) string {
	if original == "" {
		return uuid.NewString() + ext
	}
	root := strings.TrimSuffix(original, path.Ext(original))
	return root + ext
}

func readUpstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &models.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
