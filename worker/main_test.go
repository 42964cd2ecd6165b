package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility-rag/internal/dedupe"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
)

type stubIngester struct {
	batches [][]models.Document
	err     error
}

func (s *stubIngester) Ingest(_ context.Context, docs []models.Document) (rag.IngestReport, error) {
	if s.err != nil {
		return rag.IngestReport{}, s.err
	}
	s.batches = append(s.batches, docs)
	return rag.IngestReport{GenerationID: "gen", Documents: len(docs), Chunks: len(docs)}, nil
}

func newGuard() *replayGuard {
	return &replayGuard{cache: dedupe.NewCache(100, time.Hour)}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(t *testing.T, batch models.Batch) kafka.Message {
	t.Helper()
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageIngestsBatch(t *testing.T) {
	seen := newGuard()
	ing := &stubIngester{}

	batch := models.Batch{
		ID: "batch-1",
		Documents: []models.Document{
			{Title: " Rates hold ", Content: "The bank held rates.", URL: "https://reuters.com/a"},
			{Content: "Heavy rain flooded towns overnight. Crews responded.", URL: "https://bbc.com/b"},
			{Title: "  ", Content: " "},
		},
	}

	require.NoError(t, processMessage(context.Background(), discard(), ing, seen, message(t, batch)))
	require.Len(t, ing.batches, 1)

	docs := ing.batches[0]
	require.Len(t, docs, 2)
	require.Equal(t, "Rates hold", docs[0].Title)
	require.Equal(t, "Heavy rain flooded towns overnight", docs[1].Title)

	// redelivery of the same message is skipped
	require.NoError(t, processMessage(context.Background(), discard(), ing, seen, message(t, batch)))
	require.Len(t, ing.batches, 1)

	// same content under a new batch id is skipped too
	batch.ID = "batch-2"
	require.NoError(t, processMessage(context.Background(), discard(), ing, seen, message(t, batch)))
	require.Len(t, ing.batches, 1)

	batch.ID = "batch-3"
	original := batch.Documents[0].Content
	batch.Documents[0].Content = "The bank cut rates."
	require.NoError(t, processMessage(context.Background(), discard(), ing, seen, message(t, batch)))
	require.Len(t, ing.batches, 2)

	// earlier content is ingested again once something else replaced it
	batch.ID = "batch-4"
	batch.Documents[0].Content = original
	require.NoError(t, processMessage(context.Background(), discard(), ing, seen, message(t, batch)))
	require.Len(t, ing.batches, 3)
}

func TestProcessMessageFailures(t *testing.T) {
	seen := newGuard()

	err := processMessage(context.Background(), discard(), &stubIngester{}, seen, kafka.Message{Value: []byte("{")})
	require.ErrorContains(t, err, "decode batch")

	failing := &stubIngester{err: errors.New("index unavailable")}
	batch := models.Batch{ID: "b", Documents: []models.Document{{Title: "x", Content: "y"}}}
	err = processMessage(context.Background(), discard(), failing, seen, message(t, batch))
	require.ErrorContains(t, err, "index unavailable")

	// a failed batch is not remembered, so a retry reaches the ingester
	ok := &stubIngester{}
	require.NoError(t, processMessage(context.Background(), discard(), ok, seen, message(t, batch)))
	require.Len(t, ok.batches, 1)
}

func TestProcessMessageEmptyBatch(t *testing.T) {
	ing := &stubIngester{}
	msg := message(t, models.Batch{ID: "empty"})
	require.NoError(t, processMessage(context.Background(), discard(), ing, newGuard(), msg))
	require.Empty(t, ing.batches)
}

type flakyWriter struct {
	failures int
	written  []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func TestSendToDLQ(t *testing.T) {
	w := &flakyWriter{}
	msg := kafka.Message{Value: []byte("payload"), Partition: 2, Offset: 41}

	require.True(t, sendToDLQ(context.Background(), discard(), w, msg, errors.New("boom")))
	require.Len(t, w.written, 1)

	headers := map[string]string{}
	for _, h := range w.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "2", headers["original_partition"])
	require.Equal(t, "41", headers["original_offset"])
	require.Equal(t, "boom", headers["error"])
	require.NotEmpty(t, headers["timestamp"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sendToDLQ(ctx, discard(), &flakyWriter{failures: 10}, msg, errors.New("boom")))
}
