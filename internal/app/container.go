package app

import (
	"context"
	"net/http"

	"github.com/ncecere/asr_gateway/internal/adapters/dashscope"
	"github.com/ncecere/asr_gateway/internal/adapters/filetrans"
	"github.com/ncecere/asr_gateway/internal/config"
	"github.com/ncecere/asr_gateway/internal/observability"
	"github.com/ncecere/asr_gateway/internal/providers"
	"github.com/ncecere/asr_gateway/internal/services/transcription"
	"github.com/ncecere/asr_gateway/internal/staging"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	Observability *observability.Provider
	Transcription *transcription.Service
}

// NewContainer wires the adapters, staging, and routing for the gateway.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.DashScope.HTTPTimeout}

	syncAdapter := dashscope.New(dashscope.Options{
		BaseURL:    cfg.DashScope.CompatibleBaseURL,
		HTTPClient: httpClient,
	})
	asyncAdapter := filetrans.New(filetrans.Options{
		BaseURL:      cfg.DashScope.APIBaseURL,
		HTTPClient:   httpClient,
		PollInterval: cfg.DashScope.TaskPollInterval,
	})

	registry := providers.NewRegistry(syncAdapter, asyncAdapter)
	stager := staging.New(cfg.DashScope)

	return &Container{
		Config:        cfg,
		Observability: obs,
		Transcription: transcription.New(stager, registry),
	}, nil
}
