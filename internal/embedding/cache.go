package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
)

// Embedder is what Cached wraps.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// VectorCache stores embeddings by key. Implementations treat backend
// failures as misses.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32) error
}

// Cached serves embeddings from a VectorCache and fills it on misses.
type Cached struct {
	next  Embedder
	cache VectorCache
	log   *slog.Logger
}

// NewCached wraps next with cache.
func NewCached(next Embedder, cache VectorCache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cached{next: next, cache: cache, log: logger}
}

// Embed returns the cached vector for text or computes and stores it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.next.ModelName(), text)
	if vec, ok := c.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch only sends cache misses to the wrapped embedder.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		keys[i] = CacheKey(c.next.ModelName(), text)
		if vec, ok := c.cache.Get(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.store(ctx, keys[idx], vecs[j])
	}

	c.log.Debug("embedding cache batch",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)),
	)
	return out, nil
}

// ModelName returns the wrapped model's name.
func (c *Cached) ModelName() string { return c.next.ModelName() }

func (c *Cached) store(ctx context.Context, key string, vec []float32) {
	if err := c.cache.Set(ctx, key, vec); err != nil {
		c.log.Warn("store embedding in cache", slog.Any("err", err))
	}
}

// CacheKey derives a stable cache key from model and text.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return model + ":" + hex.EncodeToString(sum[:])
}
