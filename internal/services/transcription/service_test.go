package transcription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/providers"
)

type stubStager struct {
	calls  int
	staged models.StagedAudio

	gotBaseModel   string
	gotForceRemote bool
}

func (s *stubStager) Stage(_ context.Context, _ models.AudioInput, baseModel string, forceRemote bool) (models.StagedAudio, error) {
	s.calls++
	s.gotBaseModel = baseModel
	s.gotForceRemote = forceRemote
	return s.staged, nil
}

type stubSync struct {
	got models.TranscriptionRequest
}

func (s *stubSync) Transcribe(_ context.Context, req models.TranscriptionRequest) (models.TranscriptionResult, error) {
	s.got = req
	return models.TranscriptionResult{Text: "sync"}, nil
}

func (s *stubSync) TranscribeStream(_ context.Context, req models.TranscriptionRequest) (<-chan models.StreamEvent, func() error, error) {
	s.got = req
	events := make(chan models.StreamEvent, 1)
	events <- models.DoneEvent("stream", models.Usage{})
	close(events)
	return events, func() error { return nil }, nil
}

type stubAsync struct {
	got models.TranscriptionRequest
}

func (s *stubAsync) Transcribe(_ context.Context, req models.TranscriptionRequest) (models.TranscriptionResult, error) {
	s.got = req
	return models.TranscriptionResult{Text: "async"}, nil
}

func newTestService(stager *stubStager) (*Service, *stubSync, *stubAsync) {
	syncAdapter := &stubSync{}
	asyncAdapter := &stubAsync{}
	return New(stager, providers.NewRegistry(syncAdapter, asyncAdapter)), syncAdapter, asyncAdapter
}

func wavRequest(model string) Request {
	return Request{
		Model: model,
		Audio: models.AudioInput{Data: []byte("RIFF"), Filename: "a.wav", ContentType: "audio/wav"},
	}
}

func TestTranscribeSyncRoute(t *testing.T) {
	t.Parallel()

	stager := &stubStager{staged: models.InlineAudio("data:audio/wav;base64,AAAA")}
	svc, syncAdapter, _ := newTestService(stager)

	result, err := svc.Transcribe(context.Background(), wavRequest("qwen3-asr-flash:itn"))
	require.NoError(t, err)
	require.Equal(t, "sync", result.Text)

	require.Equal(t, 1, stager.calls)
	require.Equal(t, "qwen3-asr-flash", stager.gotBaseModel)
	require.False(t, stager.gotForceRemote)

	require.Equal(t, "qwen3-asr-flash", syncAdapter.got.Spec.BaseModel)
	require.True(t, syncAdapter.got.Spec.EnableITN)
	require.False(t, syncAdapter.got.Audio.IsRemote())
}

func TestTranscribeAsyncRouteForcesRemote(t *testing.T) {
	t.Parallel()

	stager := &stubStager{staged: models.RemoteAudio("oss://bucket/a.wav")}
	svc, _, asyncAdapter := newTestService(stager)

	result, err := svc.Transcribe(context.Background(), wavRequest("paraformer-v2"))
	require.NoError(t, err)
	require.Equal(t, "async", result.Text)

	require.True(t, stager.gotForceRemote)
	require.True(t, asyncAdapter.got.Audio.IsRemote())
}

func TestTranscribeDefaultModel(t *testing.T) {
	t.Parallel()

	stager := &stubStager{staged: models.InlineAudio("data:audio/wav;base64,AAAA")}
	svc, syncAdapter, _ := newTestService(stager)

	_, err := svc.Transcribe(context.Background(), wavRequest(""))
	require.NoError(t, err)
	require.Equal(t, "qwen3-asr-flash", syncAdapter.got.Spec.BaseModel)
}

func TestTranscribeUnsupportedModel(t *testing.T) {
	t.Parallel()

	stager := &stubStager{}
	svc, _, _ := newTestService(stager)

	_, err := svc.Transcribe(context.Background(), wavRequest("whisper-1"))
	require.ErrorIs(t, err, models.ErrUnsupportedModel)
	require.Zero(t, stager.calls)
}

func TestTranscribeStreamRejectsAsyncModelsBeforeStaging(t *testing.T) {
	t.Parallel()

	stager := &stubStager{}
	svc, _, _ := newTestService(stager)

	_, _, err := svc.TranscribeStream(context.Background(), wavRequest("paraformer-v2"))
	require.ErrorIs(t, err, models.ErrStreamingUnsupported)
	require.Zero(t, stager.calls)
}

func TestTranscribeStreamSyncRoute(t *testing.T) {
	t.Parallel()

	stager := &stubStager{staged: models.InlineAudio("data:audio/wav;base64,AAAA")}
	svc, syncAdapter, _ := newTestService(stager)

	events, cancel, err := svc.TranscribeStream(context.Background(), wavRequest("qwen3-asr-flash"))
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, 1, stager.calls)
	require.Equal(t, "qwen3-asr-flash", syncAdapter.got.Spec.BaseModel)

	ev := <-events
	require.Equal(t, models.StreamEventDone, ev.Type)
	require.Equal(t, "stream", ev.Text)
}

func TestLabels(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(&stubStager{})

	model, backend := svc.Labels("qwen3-asr-flash:itn")
	require.Equal(t, "qwen3-asr-flash", model)
	require.Equal(t, "sync", backend)

	model, backend = svc.Labels("paraformer-v2")
	require.Equal(t, "paraformer-v2", model)
	require.Equal(t, "async_polling", backend)

	model, backend = svc.Labels("")
	require.Equal(t, "qwen3-asr-flash", model)
	require.Equal(t, "sync", backend)

	_, backend = svc.Labels("whisper-1")
	require.Equal(t, "unknown", backend)
}
