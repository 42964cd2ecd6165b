package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility-rag/internal/config"
)

func clearCommon(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ELASTICSEARCH_ADDR", "ELASTICSEARCH_INDEX", "INDEX_BACKEND", "EMBEDDER",
		"EMBEDDING_DIMENSIONS", "OLLAMA_ADDR", "OLLAMA_MODEL", "REDIS_ADDR", "REDIS_TTL",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "TOP_K_RETRIEVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadCommonDefaults(t *testing.T) {
	clearCommon(t)

	cfg, err := config.LoadCommon()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "news_chunks", cfg.ElasticsearchIndex)
	require.Equal(t, config.BackendMemory, cfg.IndexBackend)
	require.Equal(t, config.EmbedderHash, cfg.Embedder)
	require.Equal(t, 256, cfg.EmbeddingDimensions)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, 24*time.Hour, cfg.RedisTTL)
	require.Equal(t, 500, cfg.ChunkSize)
	require.Equal(t, 100, cfg.ChunkOverlap)
	require.Equal(t, 5, cfg.TopK)
}

func TestLoadCommonValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "backend", env: map[string]string{"INDEX_BACKEND": "sqlite"}, want: "INDEX_BACKEND"},
		{name: "embedder", env: map[string]string{"EMBEDDER": "openai"}, want: "EMBEDDER"},
		{name: "dimensions", env: map[string]string{"EMBEDDING_DIMENSIONS": "-1"}, want: "EMBEDDING_DIMENSIONS"},
		{name: "overlap too large", env: map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}, want: "CHUNK_OVERLAP"},
		{name: "negative overlap", env: map[string]string{"CHUNK_OVERLAP": "-5"}, want: "CHUNK_OVERLAP"},
		{name: "top k", env: map[string]string{"TOP_K_RETRIEVAL": "0"}, want: "TOP_K_RETRIEVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCommon(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadCommon()
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadWorkerOverrides(t *testing.T) {
	clearCommon(t)
	t.Setenv("INDEX_BACKEND", "Elasticsearch")
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_METRICS_ADDR", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, config.BackendElasticsearch, cfg.IndexBackend)
	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.KafkaBrokers)
	require.Equal(t, "custom_topic", cfg.KafkaTopic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, "0.0.0.0:9091", cfg.MetricsAddr)
}

func TestLoadWorkerRequiresSharedIndex(t *testing.T) {
	clearCommon(t)
	_, err := config.LoadWorker()
	require.ErrorContains(t, err, "INDEX_BACKEND")
}

func TestLoadAPI(t *testing.T) {
	clearCommon(t)
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_QUERY_TIMEOUT", "5s")
	t.Setenv("TOP_K_RETRIEVAL", "8")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 5*time.Second, cfg.QueryTimeout)
	require.Equal(t, 8, cfg.TopK)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
	require.Equal(t, 8<<20, cfg.MaxBodyBytes)
}

func TestLoadFetcher(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("NEWS_API_KEY", "key")
	t.Setenv("NEWS_COUNTRY", "gb")
	t.Setenv("NEWS_CATEGORY", "science")
	t.Setenv("NEWS_LIMIT", "25")
	t.Setenv("UPDATE_INTERVAL", "not-a-duration")
	t.Setenv("NEWS_API_RPS", "0.5")

	cfg, err := config.LoadFetcher()
	require.NoError(t, err)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "news_batches", cfg.KafkaTopic)
	require.Equal(t, "gb", cfg.Country)
	require.Equal(t, "science", cfg.Category)
	require.Equal(t, 25, cfg.Limit)
	require.Equal(t, 30*time.Minute, cfg.Interval)
	require.Equal(t, 0.5, cfg.NewsAPIRPS)
}

func TestLoadFetcherValidation(t *testing.T) {
	t.Setenv("NEWS_API_KEY", "")
	_, err := config.LoadFetcher()
	require.ErrorContains(t, err, "NEWS_API_KEY")

	t.Setenv("NEWS_API_KEY", "key")
	t.Setenv("NEWS_LIMIT", "500")
	_, err = config.LoadFetcher()
	require.ErrorContains(t, err, "NEWS_LIMIT")
}
