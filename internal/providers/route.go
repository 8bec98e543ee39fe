package providers

import (
	"fmt"
	"sort"

	"github.com/ncecere/asr_gateway/internal/models"
)

// BackendKind is the closed set of backend protocols a base model can be
// served by. Adding a backend means adding a constant here and extending
// the one dispatch switch in the transcription service.
type BackendKind int

const (
	// BackendSync is the chat-completion shaped endpoint, single-shot or
	// SSE streaming.
	BackendSync BackendKind = iota
	// BackendAsyncPolling is the submit-and-poll task endpoint. It only
	// accepts object-store URIs and cannot stream.
	BackendAsyncPolling
)

func (k BackendKind) String() string {
	switch k {
	case BackendSync:
		return "sync"
	case BackendAsyncPolling:
		return "async_polling"
	default:
		return fmt.Sprintf("backend(%d)", int(k))
	}
}

// routeTable maps known base models onto backend protocols. Model aliases
// carrying the ":itn" suffix resolve to these base names before lookup.
var routeTable = map[string]BackendKind{
	"qwen3-asr-flash":           BackendSync,
	"qwen3-asr-flash-filetrans": BackendAsyncPolling,
	"paraformer-v2":             BackendAsyncPolling,
	"paraformer-v1":             BackendAsyncPolling,
	"paraformer-8k-v1":          BackendAsyncPolling,
}

// Route binds a backend protocol to its adapter instances. Stream is nil
// for backends that cannot stream.
type Route struct {
	Kind        BackendKind
	Transcriber Transcriber
	Stream      StreamingTranscriber
}

// Registry resolves base models to routes. It is immutable after New and
// safe for concurrent use.
type Registry struct {
	routes map[string]Route
}

// NewRegistry binds the static route table to the given adapters.
func NewRegistry(sync interface {
	Transcriber
	StreamingTranscriber
}, async Transcriber) *Registry {
	routes := make(map[string]Route, len(routeTable))
	for base, kind := range routeTable {
		switch kind {
		case BackendSync:
			routes[base] = Route{Kind: kind, Transcriber: sync, Stream: sync}
		case BackendAsyncPolling:
			routes[base] = Route{Kind: kind, Transcriber: async}
		}
	}
	return &Registry{routes: routes}
}

// Resolve returns the route serving baseModel, or ErrUnsupportedModel.
func (r *Registry) Resolve(baseModel string) (Route, error) {
	route, ok := r.routes[baseModel]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", models.ErrUnsupportedModel, baseModel)
	}
	return route, nil
}

// BaseModels lists every routable base model.
func (r *Registry) BaseModels() []string {
	out := make([]string, 0, len(r.routes))
	for base := range r.routes {
		out = append(out, base)
	}
	sort.Strings(out)
	return out
}
