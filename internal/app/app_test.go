package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility-rag/internal/app"
	"github.com/DeafMist/news-credibility-rag/internal/config"
	"github.com/DeafMist/news-credibility-rag/internal/models"
)

func memoryConfig() config.Common {
	return config.Common{
		IndexBackend:        config.BackendMemory,
		Embedder:            config.EmbedderHash,
		EmbeddingDimensions: 64,
		ChunkSize:           200,
		ChunkOverlap:        20,
		TopK:                3,
	}
}

func TestBuildMemoryRuntime(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rt, err := app.Build(ctx, memoryConfig(), app.Options{Registerer: reg}, nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Health(ctx))
	require.Equal(t, config.BackendMemory, rt.Backend)

	_, err = rt.Pipeline.Ingest(ctx, []models.Document{
		{Title: "Bridge reopens", Content: "The city bridge reopened after repairs.", URL: "https://apnews.com/bridge"},
	})
	require.NoError(t, err)

	env := rt.Pipeline.Query(ctx, "bridge repairs")
	require.Equal(t, []string{"https://apnews.com/bridge"}, env.Sources)
	require.Equal(t, 1, rt.Recorder.Summary().TotalQueries)
	require.Equal(t, 1, rt.Recorder.Summary().ArticlesProcessed)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.IndexBackend = "sqlite"
	_, err := app.Build(context.Background(), cfg, app.Options{}, nil)
	require.Error(t, err)
}

func TestBuildSurvivesMissingRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	rt, err := app.Build(context.Background(), cfg, app.Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}

func TestBuildElasticsearchHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := memoryConfig()
	cfg.IndexBackend = config.BackendElasticsearch
	cfg.ElasticsearchAddr = srv.URL
	cfg.ElasticsearchIndex = "news_chunks"

	rt, err := app.Build(context.Background(), cfg, app.Options{ConnectRetries: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Health(context.Background()))

	healthy.Store(false)
	require.ErrorContains(t, rt.Health(context.Background()), "elasticsearch")

	_, err = app.Build(context.Background(), cfg, app.Options{ConnectRetries: 1}, nil)
	require.Error(t, err)
}
