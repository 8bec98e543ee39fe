package staging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/asr_gateway/internal/config"
	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/requestctx"
)

func testStager(apiBaseURL string) *Stager {
	return New(config.DashScopeConfig{
		APIBaseURL:  apiBaseURL,
		HTTPTimeout: 5 * time.Second,
	})
}

func wavBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte("RIFF\x00\x00\x00\x00WAVEfmt "))
	return data
}

func TestStageEmptyAudio(t *testing.T) {
	t.Parallel()

	s := testStager("http://unused.invalid")
	_, err := s.Stage(context.Background(), models.AudioInput{}, "qwen3-asr-flash", false)
	require.ErrorIs(t, err, models.ErrEmptyAudio)
}

func TestStageInlineBelowThreshold(t *testing.T) {
	t.Parallel()

	s := testStager("http://unused.invalid")
	audio := models.AudioInput{Data: wavBytes(2 << 20), Filename: "a.wav", ContentType: "audio/wav"}

	staged, err := s.Stage(context.Background(), audio, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.False(t, staged.IsRemote())
	require.True(t, strings.HasPrefix(staged.Payload(), "data:audio/wav;base64,"))

	// Same bytes stage to the same URI.
	again, err := s.Stage(context.Background(), audio, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.Equal(t, staged, again)
}

func TestStageThresholdBoundary(t *testing.T) {
	t.Parallel()

	limit := float64(base64MaxBytes)
	below := int(limit)     // largest size still strictly under
	above := int(limit) + 1 // first size over the limit

	s := testStager("http://unused.invalid")
	staged, err := s.Stage(context.Background(), models.AudioInput{
		Data:        wavBytes(below),
		Filename:    "big.wav",
		ContentType: "audio/wav",
	}, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.False(t, staged.IsRemote())

	policy, upload := uploadServers(t, nil)
	defer policy.Close()
	defer upload.Close()

	s = testStager(policy.URL)
	staged, err = s.Stage(context.Background(), models.AudioInput{
		Data:        wavBytes(above),
		Filename:    "big.wav",
		ContentType: "audio/wav",
	}, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.True(t, staged.IsRemote())
}

func TestStageMediaTypeResolution(t *testing.T) {
	t.Parallel()

	s := testStager("http://unused.invalid")
	ctx := context.Background()

	// Declared content type wins.
	staged, err := s.Stage(ctx, models.AudioInput{Data: []byte{0x01}, ContentType: "audio/flac"}, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(staged.Payload(), "data:audio/flac;base64,"))

	// Filename extension fallback.
	staged, err = s.Stage(ctx, models.AudioInput{Data: []byte{0x01}, Filename: "take.mp3"}, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(staged.Payload(), "data:audio/mpeg;base64,"))

	// Byte sniffing as last resort.
	staged, err = s.Stage(ctx, models.AudioInput{Data: wavBytes(64)}, "qwen3-asr-flash", false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(staged.Payload(), "data:audio/wav"))

	// Undetectable binary is rejected.
	_, err = s.Stage(ctx, models.AudioInput{Data: []byte{0x01, 0x02, 0x03, 0x04}}, "qwen3-asr-flash", false)
	require.ErrorIs(t, err, models.ErrUnsupportedMediaType)
}

// uploadServers fakes the policy endpoint and the object store. inspect,
// when non-nil, receives each multipart upload request for assertions.
func uploadServers(t *testing.T, inspect func(r *http.Request)) (*httptest.Server, *httptest.Server) {
	t.Helper()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.WriteHeader(http.StatusOK)
	}))

	policy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/uploads", r.URL.Path)
		require.Equal(t, "getPolicy", r.URL.Query().Get("action"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"upload_dir":             "audio/2026",
				"upload_host":            upload.URL,
				"oss_access_key_id":      "AKID",
				"signature":              "sig",
				"policy":                 "cG9saWN5",
				"x_oss_object_acl":       "private",
				"x_oss_forbid_overwrite": "false",
			},
		})
	}))
	return policy, upload
}

func TestStageForceRemote(t *testing.T) {
	t.Parallel()

	var gotFields map[string]string
	var gotFilename string
	policy, upload := uploadServers(t, func(r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		gotFilename = r.MultipartForm.File["file"][0].Filename
	})
	defer policy.Close()
	defer upload.Close()

	ctx := requestctx.WithContext(context.Background(), &requestctx.Context{
		RequestID:     uuid.New(),
		Authorization: "Bearer sk-test",
	})

	s := testStager(policy.URL)
	staged, err := s.Stage(ctx, models.AudioInput{
		Data:        wavBytes(128),
		Filename:    "meeting.wav",
		ContentType: "audio/wav",
	}, "paraformer-v2", true)
	require.NoError(t, err)
	require.True(t, staged.IsRemote())
	require.Equal(t, "oss://audio/2026/meeting.wav", staged.Payload())

	require.Equal(t, "AKID", gotFields["OSSAccessKeyId"])
	require.Equal(t, "sig", gotFields["Signature"])
	require.Equal(t, "cG9saWN5", gotFields["policy"])
	require.Equal(t, "audio/2026/meeting.wav", gotFields["key"])
	require.Equal(t, "200", gotFields["success_action_status"])
	require.Equal(t, "meeting.wav", gotFilename)
}

func TestStageUploadPolicyError(t *testing.T) {
	t.Parallel()

	policy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"InvalidApiKey"}`, http.StatusUnauthorized)
	}))
	defer policy.Close()

	s := testStager(policy.URL)
	_, err := s.Stage(context.Background(), models.AudioInput{
		Data:        wavBytes(64),
		ContentType: "audio/wav",
	}, "paraformer-v2", true)

	var upstream *models.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	require.Contains(t, upstream.Body, "InvalidApiKey")
}
