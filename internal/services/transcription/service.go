package transcription

import (
	"context"
	"fmt"

	"github.com/ncecere/asr_gateway/internal/models"
	"github.com/ncecere/asr_gateway/internal/providers"
)

// Stager prepares the uploaded audio for whichever backend is selected.
type Stager interface {
	Stage(ctx context.Context, audio models.AudioInput, baseModel string, forceRemote bool) (models.StagedAudio, error)
}

// Request is one inbound transcription call after form parsing.
type Request struct {
	Model    string
	Language string
	Prompt   string
	Audio    models.AudioInput
}

// Service composes model resolution, audio staging, and backend dispatch.
// It holds no per-request state; concurrent requests share only the
// immutable route registry.
type Service struct {
	stager Stager
	routes *providers.Registry
}

func New(stager Stager, routes *providers.Registry) *Service {
	return &Service{stager: stager, routes: routes}
}

// Transcribe runs one non-streaming transcription end to end.
func (s *Service) Transcribe(ctx context.Context, req Request) (models.TranscriptionResult, error) {
	spec, route, err := s.resolve(req)
	if err != nil {
		return models.TranscriptionResult{}, err
	}

	staged, err := s.stage(ctx, req.Audio, spec, route)
	if err != nil {
		return models.TranscriptionResult{}, err
	}

	backendReq := models.TranscriptionRequest{Spec: spec, Audio: staged, Prompt: req.Prompt}
	switch route.Kind {
	case providers.BackendSync:
		return route.Transcriber.Transcribe(ctx, backendReq)
	case providers.BackendAsyncPolling:
		return route.Transcriber.Transcribe(ctx, backendReq)
	default:
		return models.TranscriptionResult{}, fmt.Errorf("no dispatch for backend kind %s", route.Kind)
	}
}

// TranscribeStream runs one streaming transcription. Models routed to the
// polling backend are rejected here, before any staging or network I/O.
func (s *Service) TranscribeStream(ctx context.Context, req Request) (<-chan models.StreamEvent, func() error, error) {
	spec, route, err := s.resolve(req)
	if err != nil {
		return nil, nil, err
	}
	if route.Kind != providers.BackendSync || route.Stream == nil {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrStreamingUnsupported, spec.BaseModel)
	}

	staged, err := s.stage(ctx, req.Audio, spec, route)
	if err != nil {
		return nil, nil, err
	}

	return route.Stream.TranscribeStream(ctx, models.TranscriptionRequest{
		Spec:   spec,
		Audio:  staged,
		Prompt: req.Prompt,
	})
}

// Models lists the base models the registry can route.
func (s *Service) Models() []string {
	return s.routes.BaseModels()
}

// Labels returns the metric labels (base model, backend kind) for a
// requested model string without performing any work. Unroutable models
// are labeled with the literal model and "unknown".
func (s *Service) Labels(model string) (string, string) {
	if model == "" {
		model = models.DefaultModel
	}
	spec := models.ResolveModelSpec(model, "")
	route, err := s.routes.Resolve(spec.BaseModel)
	if err != nil {
		return spec.BaseModel, "unknown"
	}
	return spec.BaseModel, route.Kind.String()
}

func (s *Service) resolve(req Request) (models.ModelSpec, providers.Route, error) {
	model := req.Model
	if model == "" {
		model = models.DefaultModel
	}
	spec := models.ResolveModelSpec(model, req.Language)
	route, err := s.routes.Resolve(spec.BaseModel)
	if err != nil {
		return models.ModelSpec{}, providers.Route{}, err
	}
	return spec, route, nil
}

func (s *Service) stage(ctx context.Context, audio models.AudioInput, spec models.ModelSpec, route providers.Route) (models.StagedAudio, error) {
	// The task protocol accepts only object-store URIs, never inline
	// payloads.
	forceRemote := route.Kind == providers.BackendAsyncPolling
	return s.stager.Stage(ctx, audio, spec.BaseModel, forceRemote)
}
