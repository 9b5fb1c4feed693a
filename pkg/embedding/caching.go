package embedding

import (
	"context"
)

// CachingEmbedder decorates any backend with a shared cache. Repeated
// requests for the same (model, text) pair return the cached vector without
// touching the backend, which makes per-genome evaluation cost proportional
// to distinct texts rather than total requests.
type CachingEmbedder struct {
	backend Embedder
	cache   Cache
}

func NewCachingEmbedder(backend Embedder, cache Cache) *CachingEmbedder {
	return &CachingEmbedder{backend: backend, cache: cache}
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.backend.ModelID(), text)

	if vec, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return vec, nil
	}

	vec, err := c.backend.Embed(ctx, text)
	if err != nil {
		return vec, err
	}

	// A failed insert only costs a future cache miss.
	_ = c.cache.Set(ctx, key, vec)
	return vec, nil
}

func (c *CachingEmbedder) ModelID() string { return c.backend.ModelID() }

func (c *CachingEmbedder) Dimensions() int { return c.backend.Dimensions() }

func (c *CachingEmbedder) CostPerCall() float64 { return c.backend.CostPerCall() }
