// Package index is an in-process vector store made of immutable snapshots.
package index

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
)

// Snapshot is one published generation. It is never modified after Publish.
type Snapshot struct {
	id     string
	docs   []models.Document
	chunks []models.IndexedChunk
}

// ID returns the generation identifier.
func (s *Snapshot) ID() string { return s.id }

// Len returns the number of indexed chunks.
func (s *Snapshot) Len() int { return len(s.chunks) }

// Search ranks chunks by cosine similarity to vector. Ties keep insertion order.
func (s *Snapshot) Search(ctx context.Context, vector []float32, k int) ([]models.IndexedChunk, error) {
	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type hit struct {
		idx   int
		score float64
	}
	hits := make([]hit, len(s.chunks))
	for i, c := range s.chunks {
		hits[i] = hit{idx: i, score: cosine(vector, c.Embedding)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]models.IndexedChunk, k)
	for i := 0; i < k; i++ {
		out[i] = s.chunks[hits[i].idx]
	}
	return out, nil
}

// Documents returns a copy of the generation's documents.
func (s *Snapshot) Documents(context.Context) ([]models.Document, error) {
	return append([]models.Document(nil), s.docs...), nil
}

// Store holds the current snapshot and swaps it atomically on Publish.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish builds a snapshot from private copies of docs and chunks and makes
// it current.
func (st *Store) Publish(_ context.Context, docs []models.Document, chunks []models.IndexedChunk) (rag.Generation, error) {
	snap := &Snapshot{
		id:     uuid.NewString(),
		docs:   append([]models.Document(nil), docs...),
		chunks: append([]models.IndexedChunk(nil), chunks...),
	}
	st.current.Store(snap)
	return snap, nil
}

// Current returns the latest snapshot or rag.ErrNotReady.
func (st *Store) Current(context.Context) (rag.Generation, error) {
	snap := st.current.Load()
	if snap == nil {
		return nil, rag.ErrNotReady
	}
	return snap, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
