// Package app assembles the retrieval pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/news-credibility-rag/internal/config"
	"github.com/DeafMist/news-credibility-rag/internal/credibility"
	"github.com/DeafMist/news-credibility-rag/internal/elasticsearch"
	"github.com/DeafMist/news-credibility-rag/internal/embedding"
	"github.com/DeafMist/news-credibility-rag/internal/factcheck"
	"github.com/DeafMist/news-credibility-rag/internal/index"
	"github.com/DeafMist/news-credibility-rag/internal/metrics"
	"github.com/DeafMist/news-credibility-rag/internal/misinfo"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
	"github.com/DeafMist/news-credibility-rag/internal/splitter"
)

// Runtime is a wired pipeline plus the collaborators handlers need directly.
type Runtime struct {
	Pipeline *rag.Pipeline
	Recorder *metrics.Recorder
	Scorer   *credibility.Scorer
	Detector *misinfo.Detector
	Backend  string

	store   rag.Store
	checks  map[string]func(context.Context) error
	closers []io.Closer
}

// Options tune Build.
type Options struct {
	// Registerer receives the metrics collectors; nil skips registration.
	Registerer prometheus.Registerer
	// ConnectRetries bounds startup attempts against Elasticsearch.
	ConnectRetries int
}

// Build wires scorer, detector, embedder, store and recorder from cfg.
func Build(ctx context.Context, cfg config.Common, opts Options, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rt := &Runtime{
		Scorer:  credibility.NewScorer(credibility.DefaultTables()),
		Backend: cfg.IndexBackend,
		checks:  map[string]func(context.Context) error{},
	}
	rt.Detector = misinfo.NewDetector(misinfo.DefaultLexicon(), rt.Scorer)

	rec, err := metrics.NewRecorder(opts.Registerer)
	if err != nil {
		return nil, err
	}
	rt.Recorder = rec

	emb, err := rt.embedder(ctx, cfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	store, err := rt.openStore(ctx, cfg, opts, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	p, err := rag.New(rag.Deps{
		Scorer:   rt.Scorer,
		Detector: rt.Detector,
		Checker:  factcheck.New(),
		Embedder: emb,
		Splitter: splitter.New(splitter.WithChunkSize(cfg.ChunkSize), splitter.WithOverlap(cfg.ChunkOverlap)),
		Store:    store,
		Recorder: rec,
		Logger:   log,
		TopK:     cfg.TopK,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Pipeline = p
	return rt, nil
}

func (rt *Runtime) embedder(ctx context.Context, cfg config.Common, log *slog.Logger) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch cfg.Embedder {
	case config.EmbedderOllama:
		o := embedding.NewOllama(embedding.OllamaConfig{
			BaseURL:    cfg.OllamaAddr,
			Model:      cfg.OllamaModel,
			Dimensions: cfg.EmbeddingDimensions,
		})
		rt.checks["ollama"] = o.Ping
		emb = o
	case config.EmbedderHash, "":
		emb = embedding.NewHashing(cfg.EmbeddingDimensions)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}

	if cfg.RedisAddr == "" {
		return emb, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cache, err := embedding.NewRedisCache(pingCtx, cfg.RedisAddr, cfg.RedisTTL, log)
	if err != nil {
		log.Warn("embedding cache disabled", slog.String("addr", cfg.RedisAddr), slog.Any("err", err))
		return emb, nil
	}
	rt.closers = append(rt.closers, cache)
	log.Info("embedding cache enabled", slog.String("addr", cfg.RedisAddr))
	return embedding.NewCached(emb, cache, log), nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg config.Common, opts Options, log *slog.Logger) (rag.Store, error) {
	switch cfg.IndexBackend {
	case config.BackendMemory, "":
		return index.NewStore(), nil
	case config.BackendElasticsearch:
		es, err := ConnectElasticsearch(ctx, cfg, opts.ConnectRetries, log)
		if err != nil {
			return nil, err
		}
		rt.checks["elasticsearch"] = es.Health
		return es, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// ConnectElasticsearch creates the store and waits for the cluster with
// exponential backoff capped at 30s.
func ConnectElasticsearch(ctx context.Context, cfg config.Common, retries int, log *slog.Logger) (*elasticsearch.Store, error) {
	if retries <= 0 {
		retries = 1
	}
	es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, cfg.EmbeddingDimensions, log)
	if err != nil {
		return nil, err
	}

	retryDelay := 2 * time.Second
	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = es.Ping(pingCtx)
		cancel()
		if err == nil {
			log.Info("connected to elasticsearch", slog.String("addr", cfg.ElasticsearchAddr))
			return es, nil
		}
		if i == retries-1 {
			break
		}
		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", retries),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, fmt.Errorf("connect to elasticsearch after %d attempts: %w", retries, err)
}

// Summary is the recorder's summary with ArticlesProcessed raised to the
// count persisted with the current generation, which includes ingestions
// made by other processes such as the worker.
func (rt *Runtime) Summary(ctx context.Context) metrics.Summary {
	s := rt.Recorder.Summary()
	gen, err := rt.store.Current(ctx)
	if err != nil {
		return s
	}
	tally, ok := gen.(rag.ArticleTally)
	if !ok {
		return s
	}
	n, err := tally.ArticlesProcessed(ctx)
	if err != nil {
		return s
	}
	if n > s.ArticlesProcessed {
		s.ArticlesProcessed = n
	}
	return s
}

// Health runs every backend check and joins their failures.
func (rt *Runtime) Health(ctx context.Context) error {
	var errs []error
	for name, check := range rt.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections opened by Build.
func (rt *Runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
