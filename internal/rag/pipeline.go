// Package rag ingests scored news documents into a retrieval store and
// answers questions over the current generation.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DeafMist/news-credibility-rag/internal/factcheck"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 5

// CredibilityScorer scores one document.
type CredibilityScorer interface {
	Score(doc models.Document) models.CredibilityProfile
}

// MisinfoDetector assesses one document.
type MisinfoDetector interface {
	Detect(doc models.Document) models.MisinfoProfile
}

// FactChecker synthesises the answer for a question.
type FactChecker interface {
	Answer(question, context string, docs []models.Document) factcheck.Result
}

// Deps are the collaborators of a Pipeline. Embedder, Splitter and Store are
// required.
type Deps struct {
	Scorer   CredibilityScorer
	Detector MisinfoDetector
	Checker  FactChecker
	Embedder Embedder
	Splitter Splitter
	Store    Store
	Recorder Recorder
	Logger   *slog.Logger
	TopK     int
}

// IngestReport describes one ingestion.
type IngestReport struct {
	GenerationID string        `json:"generation_id"`
	Documents    int           `json:"documents"`
	Chunks       int           `json:"chunks"`
	Duration     time.Duration `json:"duration"`
}

// Pipeline coordinates ingestion and querying. Ingestions are serialised;
// queries run concurrently with each other and with ingestion.
type Pipeline struct {
	scorer   CredibilityScorer
	detector MisinfoDetector
	checker  FactChecker
	embedder Embedder
	splitter Splitter
	store    Store
	recorder Recorder
	log      *slog.Logger
	topK     int
	now      func() time.Time

	ingestMu sync.Mutex
}

// New validates deps and builds a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, errors.New("pipeline requires an embedder")
	}
	if deps.Splitter == nil {
		return nil, errors.New("pipeline requires a splitter")
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline requires a store")
	}
	if deps.Checker == nil {
		deps.Checker = factcheck.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.TopK <= 0 {
		deps.TopK = DefaultTopK
	}

	return &Pipeline{
		scorer:   deps.Scorer,
		detector: deps.Detector,
		checker:  deps.Checker,
		embedder: deps.Embedder,
		splitter: deps.Splitter,
		store:    deps.Store,
		recorder: deps.Recorder,
		log:      deps.Logger,
		topK:     deps.TopK,
		now:      time.Now,
	}, nil
}

// Annotate returns copies of docs with credibility and misinformation
// profiles attached where missing.
func (p *Pipeline) Annotate(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		if d.Credibility == nil && p.scorer != nil {
			c := p.scorer.Score(d)
			d.Credibility = &c
		}
		if d.Misinfo == nil && p.detector != nil {
			m := p.detector.Detect(d)
			d.Misinfo = &m
		}
		out[i] = d
	}
	return out
}

// Ingest annotates docs, splits them into chunks, embeds the chunks and
// publishes them as a new generation that replaces the previous one. An
// empty batch is a no-op.
func (p *Pipeline) Ingest(ctx context.Context, docs []models.Document) (IngestReport, error) {
	if len(docs) == 0 {
		return IngestReport{}, nil
	}

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	start := p.now()
	annotated := p.Annotate(docs)
	chunks := p.chunk(annotated)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestReport{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return IngestReport{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	gen, err := p.store.Publish(ctx, annotated, chunks)
	if err != nil {
		return IngestReport{}, fmt.Errorf("publish generation: %w", err)
	}
	p.recorder.ArticlesProcessed(len(docs))

	report := IngestReport{
		GenerationID: gen.ID(),
		Documents:    len(docs),
		Chunks:       len(chunks),
		Duration:     p.now().Sub(start),
	}
	p.log.Info("ingested documents",
		slog.String("generation", report.GenerationID),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Duration("took", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) chunk(docs []models.Document) []models.IndexedChunk {
	var chunks []models.IndexedChunk
	for _, d := range docs {
		text := fmt.Sprintf("Title: %s\n\nContent: %s", d.Title, d.Content)
		for pos, piece := range p.splitter.Split(text) {
			chunks = append(chunks, models.IndexedChunk{
				ID:               processing.BuildChunkID(d.URL, pos, piece),
				Text:             piece,
				SourceTitle:      d.Title,
				SourceURL:        d.URL,
				SourceName:       d.SourceName,
				CredibilityScore: d.OverallCredibility(),
				MisinfoRisk:      d.MisinfoRisk(),
				Position:         pos,
			})
		}
	}
	return chunks
}

// Query answers question over the current generation. It never fails: a
// missing generation, an empty question or an internal error each produce a
// zero-confidence envelope describing the problem.
func (p *Pipeline) Query(ctx context.Context, question string) (env models.AnswerEnvelope) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			env = p.failure(question, start, fmt.Errorf("panic: %v", r))
		}
	}()

	gen, err := p.store.Current(ctx)
	if errors.Is(err, ErrNotReady) {
		return NotReadyEnvelope()
	}
	if err != nil {
		return p.failure(question, start, fmt.Errorf("resolve generation: %w", err))
	}

	if strings.TrimSpace(question) == "" {
		return EmptyQueryEnvelope()
	}

	env, err = p.answer(ctx, gen, question, start)
	if err != nil {
		return p.failure(question, start, err)
	}
	return env
}

func (p *Pipeline) answer(ctx context.Context, gen Generation, question string, start time.Time) (models.AnswerEnvelope, error) {
	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return models.AnswerEnvelope{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := gen.Search(ctx, vec, p.topK)
	if err != nil {
		return models.AnswerEnvelope{}, fmt.Errorf("search generation %s: %w", gen.ID(), err)
	}

	docs, err := gen.Documents(ctx)
	if err != nil {
		return models.AnswerEnvelope{}, fmt.Errorf("load documents of generation %s: %w", gen.ID(), err)
	}

	texts := make([]string, len(hits))
	sources := make([]string, 0, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		if h.SourceURL != "" {
			sources = append(sources, h.SourceURL)
		}
	}

	result := p.checker.Answer(question, strings.Join(texts, "\n\n"), docs)
	avgCred, avgRisk := chunkAverages(hits)
	elapsed := p.now().Sub(start).Seconds()

	env := models.AnswerEnvelope{
		Answer:          result.Answer,
		Confidence:      result.Confidence,
		Evidence:        result.Evidence,
		Limitations:     result.Limitations,
		Recommendations: result.Recommendations,
		Sources:         sources,
		ResponseTime:    elapsed,
		RetrievedDocs:   len(hits),
		AvgCredibility:  avgCred,
		AvgMisinfoRisk:  avgRisk,
		SourceDiversity: factcheck.Diversity(sources),
		SourceCount:     result.SourceCount,
		GenerationID:    gen.ID(),
	}

	p.recorder.Log(models.QuerySample{
		Query:            question,
		ResponseTime:     elapsed,
		ConfidenceScore:  float64(env.Confidence) / 100.0,
		CredibilityScore: avgCred,
		MisinfoRisk:      avgRisk,
		Timestamp:        p.now(),
		RetrievedDocs:    len(hits),
		SourcesUsed:      sources,
	})
	p.log.Debug("answered query",
		slog.String("generation", gen.ID()),
		slog.Int("retrieved", len(hits)),
		slog.Int("confidence", env.Confidence),
		slog.Float64("seconds", elapsed),
	)
	return env, nil
}

func (p *Pipeline) failure(question string, start time.Time, err error) models.AnswerEnvelope {
	elapsed := p.now().Sub(start).Seconds()
	p.log.Warn("query failed", slog.String("query", question), slog.Any("err", err))
	p.recorder.Log(models.QuerySample{
		Query:        question,
		ResponseTime: elapsed,
		Timestamp:    p.now(),
		Failed:       true,
	})
	return models.AnswerEnvelope{
		Answer:          "Error: " + err.Error(),
		Confidence:      0,
		Evidence:        "Error occurred",
		Limitations:     "Technical error: " + err.Error(),
		Recommendations: "Try again later",
		Sources:         []string{},
	}
}

// NotReadyEnvelope is returned while nothing has been ingested.
func NotReadyEnvelope() models.AnswerEnvelope {
	return models.AnswerEnvelope{
		Answer:          "Please fetch news first.",
		Confidence:      0,
		Evidence:        "No data available",
		Limitations:     "System not ready",
		Recommendations: "Initialize the system",
		Sources:         []string{},
	}
}

// EmptyQueryEnvelope is returned for a blank question.
func EmptyQueryEnvelope() models.AnswerEnvelope {
	return models.AnswerEnvelope{
		Answer:          "Please enter a question.",
		Confidence:      0,
		Evidence:        "No query provided",
		Limitations:     "Empty query",
		Recommendations: "Ask a question about the ingested news",
		Sources:         []string{},
	}
}

func chunkAverages(hits []models.IndexedChunk) (credibility, risk float64) {
	if len(hits) == 0 {
		return 0.5, 0.5
	}
	for _, h := range hits {
		credibility += h.CredibilityScore
		risk += h.MisinfoRisk
	}
	n := float64(len(hits))
	return credibility / n, risk / n
}

type nopRecorder struct{}

func (nopRecorder) Log(models.QuerySample) {}
func (nopRecorder) ArticlesProcessed(int)  {}
