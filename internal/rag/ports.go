package rag

import (
	"context"
	"errors"

	"github.com/DeafMist/news-credibility-rag/internal/models"
)

// ErrNotReady is returned by Store.Current before anything was published.
var ErrNotReady = errors.New("no documents ingested yet")

// Embedder turns text into fixed-length vectors, deterministically for
// identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter cuts text into ordered overlapping windows.
type Splitter interface {
	Split(text string) []string
}

// Generation is one immutable ingestion result. A query keeps using the
// generation it resolved even when a newer one is published meanwhile.
type Generation interface {
	ID() string
	// Search returns up to k chunks ordered by decreasing similarity.
	Search(ctx context.Context, vector []float32, k int) ([]models.IndexedChunk, error)
	// Documents returns every document of the generation in ingestion order.
	Documents(ctx context.Context) ([]models.Document, error)
}

// ArticleTally is implemented by generations that persist the running count
// of ingested articles, so processes other than the ingesting one can report
// it.
type ArticleTally interface {
	ArticlesProcessed(ctx context.Context) (int, error)
}

// Store builds generations and tracks the current one.
type Store interface {
	// Publish builds a new generation from docs and their embedded chunks and
	// makes it current, replacing the previous one wholesale.
	Publish(ctx context.Context, docs []models.Document, chunks []models.IndexedChunk) (Generation, error)
	// Current returns the latest published generation or ErrNotReady.
	Current(ctx context.Context) (Generation, error)
}

// Recorder receives pipeline metrics.
type Recorder interface {
	Log(sample models.QuerySample)
	ArticlesProcessed(n int)
}
