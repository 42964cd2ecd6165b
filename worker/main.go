package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-credibility-rag/internal/app"
	"github.com/DeafMist/news-credibility-rag/internal/config"
	"github.com/DeafMist/news-credibility-rag/internal/dedupe"
	"github.com/DeafMist/news-credibility-rag/internal/logger"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
)

type batchIngester interface {
	Ingest(ctx context.Context, docs []models.Document) (rag.IngestReport, error)
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rt, err := app.Build(ctx, cfg.Common, app.Options{Registerer: prometheus.DefaultRegisterer, ConnectRetries: 10}, log)
	if err != nil {
		log.Error("build pipeline", slog.Any("err", err))
		os.Exit(1)
	}
	defer rt.Close()

	seen := &replayGuard{cache: dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", slog.Any("err", err))
		}
	}()
	defer metricsServer.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.String("index", cfg.ElasticsearchIndex),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, rt.Pipeline, seen, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled while ingesting, message left uncommitted")
				return
			}
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Only commit once the DLQ holds the message; otherwise it is reprocessed on restart.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// sendToDLQ writes msg with error context, retrying with exponential backoff.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

// replayGuard remembers ingested batch IDs and the content of the latest
// ingestion. Content is only compared with the latest batch because every
// ingestion replaces the whole index.
type replayGuard struct {
	cache *dedupe.Cache
	last  string
}

// processMessage ingests one fetched batch. Replayed batches and batches
// identical to the current index content are skipped.
func processMessage(ctx context.Context, log *slog.Logger, ing batchIngester, seen *replayGuard, msg kafka.Message) error {
	var batch models.Batch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	docs := make([]models.Document, 0, len(batch.Documents))
	for _, d := range batch.Documents {
		d = processing.NormalizeDocument(d)
		if d.Title == "" && d.Content == "" {
			continue
		}
		docs = append(docs, d)
	}
	batch.Documents = docs

	if len(docs) == 0 {
		log.Debug("empty batch", slog.String("batch", batch.ID))
		return nil
	}

	if seen.cache.IsSeen(batch.ID) {
		log.Debug("replayed batch", slog.String("batch", batch.ID))
		return nil
	}
	fingerprint := dedupe.Fingerprint(batch)
	if fingerprint == seen.last {
		log.Debug("unchanged batch", slog.String("batch", batch.ID))
		seen.cache.MarkSeen(batch.ID)
		return nil
	}

	report, err := ing.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest batch %s: %w", batch.ID, err)
	}

	seen.cache.MarkSeen(batch.ID)
	seen.last = fingerprint
	log.Info("ingested batch",
		slog.String("batch", batch.ID),
		slog.String("generation", report.GenerationID),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
	)
	return nil
}
