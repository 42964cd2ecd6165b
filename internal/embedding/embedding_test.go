package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility-rag/internal/embedding"
)

func TestHashingDeterministicAndNormalised(t *testing.T) {
	h := embedding.NewHashing(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Flood warning issued for the river valley")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "flood WARNING issued, for the river valley!")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	norm := 0.0
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty, err := h.Embed(ctx, "")
	require.NoError(t, err)
	require.Len(t, empty, 64)

	require.Equal(t, embedding.DefaultDimensions, embedding.NewHashing(0).Dimensions())
}

func TestHashingBatchMatchesSingle(t *testing.T) {
	h := embedding.NewHashing(32)
	ctx := context.Background()

	batch, err := h.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	single, err := h.Embed(ctx, "two")
	require.NoError(t, err)
	require.Equal(t, single, batch[1])

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.EmbedBatch(canceled, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
}

type mapCache struct {
	items map[string][]float32
	sets  int
}

func (m *mapCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, key string, vec []float32) error {
	m.items[key] = vec
	m.sets++
	return nil
}

type countingEmbedder struct {
	*embedding.Hashing
	batched []string
	fail    bool
	short   bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("model offline")
	}
	c.batched = append(c.batched, texts...)
	out, err := c.Hashing.EmbedBatch(ctx, texts)
	if c.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, err
}

func TestCachedOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{Hashing: embedding.NewHashing(16)}
	cache := &mapCache{items: map[string][]float32{}}
	c := embedding.NewCached(inner, cache, nil)

	first, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, inner.batched)
	require.Equal(t, 2, cache.sets)

	second, err := c.EmbedBatch(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, inner.batched)
	require.Equal(t, first[1], second[0])
	require.Equal(t, first[0], second[2])

	single, err := c.Embed(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, second[1], single)
	require.Equal(t, "hashing", c.ModelName())
}

func TestCachedPropagatesErrors(t *testing.T) {
	inner := &countingEmbedder{Hashing: embedding.NewHashing(16), fail: true}
	c := embedding.NewCached(inner, &mapCache{items: map[string][]float32{}}, nil)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestCachedRejectsShortBatch(t *testing.T) {
	inner := &countingEmbedder{Hashing: embedding.NewHashing(16), short: true}
	cache := &mapCache{items: map[string][]float32{}}
	c := embedding.NewCached(inner, cache, nil)

	var err error
	require.NotPanics(t, func() {
		_, err = c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	})
	require.ErrorContains(t, err, "got 2 vectors for 3 texts")
	require.Zero(t, cache.sets)
}

func TestCacheKey(t *testing.T) {
	require.Equal(t, embedding.CacheKey("m", "t"), embedding.CacheKey("m", "t"))
	require.NotEqual(t, embedding.CacheKey("m", "t"), embedding.CacheKey("n", "t"))
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req struct {
				Model  string `json:"model"`
				Prompt string `json:"prompt"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Prompt == "bad" {
				http.Error(w, "model not found", http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.5, -0.25, 1}})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	o := embedding.NewOllama(embedding.OllamaConfig{BaseURL: srv.URL + "/", Model: "test-model"})
	ctx := context.Background()

	vec, err := o.Embed(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -0.25, 1}, vec)

	vecs, err := o.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	_, err = o.Embed(ctx, "bad")
	require.ErrorContains(t, err, "status 404")

	require.NoError(t, o.Ping(ctx))
	require.Equal(t, "test-model", o.ModelName())

	strict := embedding.NewOllama(embedding.OllamaConfig{BaseURL: srv.URL, Dimensions: 8})
	_, err = strict.Embed(ctx, "hello")
	require.ErrorContains(t, err, "want 8")
}
