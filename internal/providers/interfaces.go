package providers

import (
	"context"

	"github.com/ncecere/asr_gateway/internal/models"
)

type Transcriber interface {
	Transcribe(ctx context.Context, req models.TranscriptionRequest) (models.TranscriptionResult, error)
}

type StreamingTranscriber interface {
	TranscribeStream(ctx context.Context, req models.TranscriptionRequest) (<-chan models.StreamEvent, func() error, error)
}
