package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
)

// Cache stores embedding vectors keyed by (model, text). Implementations
// must be safe for concurrent read/insert; insert races on the same key are
// harmless because the cached value for a key is deterministic.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
	Close() error
}

// CacheKey derives the deterministic cache key for a (model, text) pair.
func CacheKey(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// MemoryCache is a mutex-guarded in-process cache with no eviction. Run
// corpora are bounded, so the working set is too.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32

	hits   int64
	misses int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float32)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.vectors[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return vec, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, vector []float32) error {
	copied := append([]float32(nil), vector...)
	c.mu.Lock()
	c.vectors[key] = copied
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}

// Stats reports hit/miss counts since creation.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
