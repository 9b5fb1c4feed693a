// Package embedding provides the provider adapter that turns text into
// fixed-length float vectors. Local and remote backends are interchangeable
// behind the Embedder interface; a caching decorator makes repeated
// (model, text) requests hit a shared cache instead of the backend.
package embedding

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// Embedder produces a fixed-length float vector for a text.
type Embedder interface {
	// Embed returns the vector for text. Implementations must be safe for
	// concurrent use.
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelID identifies the underlying model; cache keys include it.
	ModelID() string
	// Dimensions is the vector length this backend produces.
	Dimensions() int
	// CostPerCall is the estimated dollar cost of one uncached request.
	CostPerCall() float64
}

// Degraded wraps a provider failure into the zero-vector fallback the
// evaluation engine uses instead of aborting: the returned vector is all
// zeros (length dim) and the error carries the ProviderFailed code so the
// caller can count the degradation.
func Degraded(dim int, cause error) ([]float32, error) {
	return make([]float32, dim), errors.Wrap(cause, errors.ProviderFailed, "embedding degraded to zero vector")
}

// Registry maps model IDs to configured embedder backends. The gene pool's
// embedding_models values must all resolve here before a run starts.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Embedder
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Embedder)}
}

// Register adds a backend under its model ID, replacing any previous one.
func (r *Registry) Register(e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[e.ModelID()] = e
}

// Get resolves a model ID to its backend.
func (r *Registry) Get(modelID string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.backends[modelID]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfiguration, "no embedding backend registered for model"),
			errors.Fields{"model": modelID})
	}
	return e, nil
}

// ModelIDs lists registered models.
func (r *Registry) ModelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	return ids
}
