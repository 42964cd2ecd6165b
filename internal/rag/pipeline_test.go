package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility-rag/internal/credibility"
	"github.com/DeafMist/news-credibility-rag/internal/embedding"
	"github.com/DeafMist/news-credibility-rag/internal/index"
	"github.com/DeafMist/news-credibility-rag/internal/metrics"
	"github.com/DeafMist/news-credibility-rag/internal/misinfo"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
	"github.com/DeafMist/news-credibility-rag/internal/splitter"
)

func newPipeline(t *testing.T, store rag.Store, emb rag.Embedder) (*rag.Pipeline, *metrics.Recorder) {
	t.Helper()
	scorer := credibility.NewScorer(credibility.DefaultTables())
	rec, err := metrics.NewRecorder(nil)
	require.NoError(t, err)
	if emb == nil {
		emb = embedding.NewHashing(embedding.DefaultDimensions)
	}
	p, err := rag.New(rag.Deps{
		Scorer:   scorer,
		Detector: misinfo.NewDetector(misinfo.DefaultLexicon(), scorer),
		Embedder: emb,
		Splitter: splitter.New(),
		Store:    store,
		Recorder: rec,
	})
	require.NoError(t, err)
	return p, rec
}

func sampleDocs() []models.Document {
	return []models.Document{
		{
			Title:      "Central bank holds interest rates",
			Content:    "The central bank kept interest rates unchanged on Tuesday, according to officials.",
			URL:        "https://www.reuters.com/markets/rates",
			SourceName: "Reuters",
		},
		{
			Title:      "Storm floods coastal towns",
			Content:    "Heavy rain flooded several coastal towns overnight, emergency services said.",
			URL:        "https://www.bbc.com/news/storm",
			SourceName: "BBC",
		},
		{
			Title:      "Shocking miracle cure they don't want you to know",
			Content:    "Sources say this secret remedy cures everything. Unconfirmed reports spread online.",
			URL:        "http://naturalnews.com/cure",
			SourceName: "NaturalNews",
		},
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := rag.New(rag.Deps{Splitter: splitter.New(), Store: index.NewStore()})
	require.Error(t, err)
	_, err = rag.New(rag.Deps{Embedder: embedding.NewHashing(8), Store: index.NewStore()})
	require.Error(t, err)
	_, err = rag.New(rag.Deps{Embedder: embedding.NewHashing(8), Splitter: splitter.New()})
	require.Error(t, err)
}

func TestQueryBeforeIngest(t *testing.T) {
	p, rec := newPipeline(t, index.NewStore(), nil)

	env := p.Query(context.Background(), "what happened to rates?")
	require.Equal(t, rag.NotReadyEnvelope(), env)
	require.Zero(t, env.Confidence)
	require.Empty(t, env.Sources)
	require.NotNil(t, env.Sources)
	require.Zero(t, rec.Summary().TotalQueries)
}

func TestIngestEmptyIsNoop(t *testing.T) {
	store := index.NewStore()
	p, rec := newPipeline(t, store, nil)

	report, err := p.Ingest(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, rag.IngestReport{}, report)

	_, err = store.Current(context.Background())
	require.ErrorIs(t, err, rag.ErrNotReady)
	require.Zero(t, rec.Summary().ArticlesProcessed)
}

func TestIngestAnnotatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := index.NewStore()
	p, rec := newPipeline(t, store, nil)

	preset := models.CredibilityProfile{OverallScore: 0.42}
	docs := sampleDocs()
	docs[1].Credibility = &preset

	report, err := p.Ingest(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 3, report.Documents)
	require.GreaterOrEqual(t, report.Chunks, 3)
	require.NotEmpty(t, report.GenerationID)
	require.Equal(t, 3, rec.Summary().ArticlesProcessed)

	gen, err := store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, report.GenerationID, gen.ID())

	stored, err := gen.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, d := range stored {
		require.NotNil(t, d.Credibility)
		require.NotNil(t, d.Misinfo)
	}
	require.Equal(t, 0.42, stored[1].Credibility.OverallScore)
	require.Greater(t, stored[0].OverallCredibility(), stored[2].OverallCredibility())
	require.Nil(t, docs[0].Credibility)
}

func TestQueryFindsPlantedDocument(t *testing.T) {
	ctx := context.Background()
	store := index.NewStore()
	p, rec := newPipeline(t, store, nil)

	_, err := p.Ingest(ctx, sampleDocs())
	require.NoError(t, err)

	env := p.Query(ctx, "central bank interest rates")
	require.Contains(t, env.Sources, "https://www.reuters.com/markets/rates")
	require.Equal(t, "https://www.reuters.com/markets/rates", env.Sources[0])
	require.True(t, strings.HasPrefix(env.Answer, "Based on analysis of 3 news articles:"))
	require.Positive(t, env.Confidence)
	require.LessOrEqual(t, env.Confidence, 85)
	require.Equal(t, 3, env.RetrievedDocs)
	require.Equal(t, 3, env.SourceCount)
	require.NotEmpty(t, env.GenerationID)
	require.GreaterOrEqual(t, env.ResponseTime, 0.0)
	require.InDelta(t, 1.0, env.SourceDiversity, 1e-9)

	hist := rec.History()
	require.Len(t, hist, 1)
	require.False(t, hist[0].Failed)
	require.Equal(t, "central bank interest rates", hist[0].Query)
	require.InDelta(t, float64(env.Confidence)/100, hist[0].ConfidenceScore, 1e-9)
	require.Equal(t, env.Sources, hist[0].SourcesUsed)
}

func TestQueryEmptyQuestion(t *testing.T) {
	ctx := context.Background()
	p, rec := newPipeline(t, index.NewStore(), nil)
	_, err := p.Ingest(ctx, sampleDocs())
	require.NoError(t, err)

	for _, q := range []string{"", "   \n\t"} {
		env := p.Query(ctx, q)
		require.Equal(t, rag.EmptyQueryEnvelope(), env)
	}
	require.Zero(t, rec.Summary().TotalQueries)
}

type failingStore struct{ err error }

func (s failingStore) Publish(context.Context, []models.Document, []models.IndexedChunk) (rag.Generation, error) {
	return nil, s.err
}

func (s failingStore) Current(context.Context) (rag.Generation, error) {
	return brokenGeneration{err: s.err}, nil
}

type brokenGeneration struct{ err error }

func (g brokenGeneration) ID() string { return "broken" }

func (g brokenGeneration) Search(context.Context, []float32, int) ([]models.IndexedChunk, error) {
	return nil, g.err
}

func (g brokenGeneration) Documents(context.Context) ([]models.Document, error) {
	return nil, g.err
}

type panickingGeneration struct{ brokenGeneration }

func (panickingGeneration) Search(context.Context, []float32, int) ([]models.IndexedChunk, error) {
	panic("index corrupted")
}

type panickingStore struct{ failingStore }

func (panickingStore) Current(context.Context) (rag.Generation, error) {
	return panickingGeneration{}, nil
}

type unresolvableStore struct{ failingStore }

func (unresolvableStore) Current(context.Context) (rag.Generation, error) {
	panic("alias lookup crashed")
}

func TestQueryFailureEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		store rag.Store
		want  string
	}{
		{name: "search error", store: failingStore{err: errors.New("connection refused")}, want: "connection refused"},
		{name: "panic", store: panickingStore{}, want: "index corrupted"},
		{name: "panic resolving generation", store: unresolvableStore{}, want: "alias lookup crashed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newPipeline(t, tt.store, nil)

			env := p.Query(context.Background(), "anything")
			require.Zero(t, env.Confidence)
			require.True(t, strings.HasPrefix(env.Answer, "Error: "))
			require.Contains(t, env.Answer, tt.want)
			require.Equal(t, "Error occurred", env.Evidence)
			require.True(t, strings.HasPrefix(env.Limitations, "Technical error: "))
			require.Equal(t, "Try again later", env.Recommendations)
			require.Empty(t, env.Sources)

			hist := rec.History()
			require.Len(t, hist, 1)
			require.True(t, hist[0].Failed)
			require.Equal(t, 0.0, rec.Summary().SuccessRate)
		})
	}
}

func TestIngestPropagatesPublishError(t *testing.T) {
	p, rec := newPipeline(t, failingStore{err: errors.New("disk full")}, nil)
	_, err := p.Ingest(context.Background(), sampleDocs())
	require.ErrorContains(t, err, "disk full")
	require.Zero(t, rec.Summary().ArticlesProcessed)
}

type shortEmbedder struct{ *embedding.Hashing }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.Hashing.EmbedBatch(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

type mapCache map[string][]float32

func (m mapCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapCache) Set(_ context.Context, key string, vec []float32) error {
	m[key] = vec
	return nil
}

func TestIngestRejectsMismatchedEmbeddings(t *testing.T) {
	tests := []struct {
		name string
		emb  rag.Embedder
	}{
		{name: "direct", emb: shortEmbedder{embedding.NewHashing(16)}},
		{name: "behind cache", emb: embedding.NewCached(shortEmbedder{embedding.NewHashing(16)}, mapCache{}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := index.NewStore()
			p, rec := newPipeline(t, store, tt.emb)

			var err error
			require.NotPanics(t, func() {
				_, err = p.Ingest(context.Background(), sampleDocs())
			})
			require.Error(t, err)
			require.Zero(t, rec.Summary().ArticlesProcessed)

			_, err = store.Current(context.Background())
			require.ErrorIs(t, err, rag.ErrNotReady)
		})
	}
}

func TestQueryDuringIngest(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, index.NewStore(), nil)
	_, err := p.Ingest(ctx, sampleDocs())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			batch := sampleDocs()
			for j := range batch {
				batch[j].Title = fmt.Sprintf("%s %d", batch[j].Title, i)
			}
			_, err := p.Ingest(ctx, batch)
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				env := p.Query(ctx, "storm floods")
				assert.NotEmpty(t, env.GenerationID)
				assert.Equal(t, 3, env.RetrievedDocs)
				assert.Equal(t, 3, env.SourceCount)
			}
		}()
	}
	wg.Wait()
}
