package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Index backends.
const (
	BackendMemory        = "memory"
	BackendElasticsearch = "elasticsearch"
)

// Embedders.
const (
	EmbedderHash   = "hash"
	EmbedderOllama = "ollama"
)

// Common contains retrieval parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
	IndexBackend       string

	Embedder            string
	EmbeddingDimensions int
	OllamaAddr          string
	OllamaModel         string
	RedisAddr           string
	RedisTTL            time.Duration

	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Worker holds configuration for the Kafka -> index worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	MetricsAddr    string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	QueryTimeout time.Duration
	MaxBodyBytes int
}

// Fetcher configures the headline polling loop.
type Fetcher struct {
	KafkaBrokers []string
	KafkaTopic   string

	NewsAPIKey     string
	NewsAPIBaseURL string
	NewsAPIRPS     float64
	Country        string
	Category       string
	Limit          int
	Interval       time.Duration
}

// LoadCommon builds the shared block from environment variables.
func LoadCommon() (Common, error) {
	c := Common{
		ElasticsearchAddr:   getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex:  getEnv("ELASTICSEARCH_INDEX", "news_chunks"),
		IndexBackend:        strings.ToLower(getEnv("INDEX_BACKEND", BackendMemory)),
		Embedder:            strings.ToLower(getEnv("EMBEDDER", EmbedderHash)),
		EmbeddingDimensions: getInt("EMBEDDING_DIMENSIONS", 256),
		OllamaAddr:          getEnv("OLLAMA_ADDR", "http://ollama:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "all-minilm"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisTTL:            getDuration("REDIS_TTL", "24h"),
		ChunkSize:           getInt("CHUNK_SIZE", 500),
		ChunkOverlap:        getInt("CHUNK_OVERLAP", 100),
		TopK:                getInt("TOP_K_RETRIEVAL", 5),
	}

	switch c.IndexBackend {
	case BackendMemory, BackendElasticsearch:
	default:
		return c, fmt.Errorf("INDEX_BACKEND must be %q or %q", BackendMemory, BackendElasticsearch)
	}
	switch c.Embedder {
	case EmbedderHash, EmbedderOllama:
	default:
		return c, fmt.Errorf("EMBEDDER must be %q or %q", EmbedderHash, EmbedderOllama)
	}
	if c.EmbeddingDimensions <= 0 {
		return c, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.ChunkSize <= 0 {
		return c, fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 {
		return c, fmt.Errorf("CHUNK_OVERLAP cannot be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return c, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if c.TopK <= 0 {
		return c, fmt.Errorf("TOP_K_RETRIEVAL must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	common, err := LoadCommon()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common:         common,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "news_batches"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "news-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 1000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		MetricsAddr:    getEnv("WORKER_METRICS_ADDR", "0.0.0.0:9091"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	// The worker and the API are separate processes; only a shared index
	// makes the worker's ingestions visible to queries.
	if c.IndexBackend != BackendElasticsearch {
		return nil, fmt.Errorf("worker requires INDEX_BACKEND=%s", BackendElasticsearch)
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := LoadCommon()
	if err != nil {
		return nil, err
	}
	c := &API{
		Common:       common,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		QueryTimeout: getDuration("API_QUERY_TIMEOUT", "30s"),
		MaxBodyBytes: getInt("API_MAX_BODY_BYTES", 8<<20),
	}

	if c.QueryTimeout <= 0 {
		return nil, fmt.Errorf("API_QUERY_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("API_MAX_BODY_BYTES must be positive")
	}

	return c, nil
}

// LoadFetcher builds a Fetcher config from environment variables.
func LoadFetcher() (*Fetcher, error) {
	c := &Fetcher{
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "news_batches"),
		NewsAPIKey:     getEnv("NEWS_API_KEY", ""),
		NewsAPIBaseURL: getEnv("NEWS_API_BASE_URL", "https://newsapi.org/v2"),
		NewsAPIRPS:     getFloat("NEWS_API_RPS", 1),
		Country:        getEnv("NEWS_COUNTRY", "us"),
		Category:       getEnv("NEWS_CATEGORY", "general"),
		Limit:          getInt("NEWS_LIMIT", 10),
		Interval:       getDuration("UPDATE_INTERVAL", "30m"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.NewsAPIKey == "" {
		return nil, fmt.Errorf("NEWS_API_KEY is required")
	}
	if c.Limit <= 0 || c.Limit > 100 {
		return nil, fmt.Errorf("NEWS_LIMIT must be between 1 and 100")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("UPDATE_INTERVAL must be positive")
	}
	if c.NewsAPIRPS < 0 {
		return nil, fmt.Errorf("NEWS_API_RPS cannot be negative")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
