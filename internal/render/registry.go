package render

import (
	"fmt"
	"sync"

	"github.com/willowglen/reportpdf/internal/domain"
)

// Renderer turns a payload into document bytes. Renderers must be pure:
// the same payload always yields byte-identical output.
type Renderer func(payload domain.ReportPayload) ([]byte, error)

// Registry dispatches payloads to kind-specific renderers. The set is
// open: a new report kind registers a renderer at startup without
// touching the dispatcher.
type Registry struct {
	mu        sync.RWMutex
	renderers map[domain.ReportKind]Renderer
}

func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[domain.ReportKind]Renderer),
	}
}

func (r *Registry) Register(kind domain.ReportKind, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[kind] = renderer
}

func (r *Registry) Render(kind domain.ReportKind, payload domain.ReportPayload) ([]byte, error) {
	r.mu.RLock()
	renderer, ok := r.renderers[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no renderer registered for kind %q", kind)
	}
	data, err := renderer(payload)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	return data, nil
}
