package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-credibility-rag/internal/config"
	"github.com/DeafMist/news-credibility-rag/internal/logger"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/newsapi"
)

type headlineSource interface {
	TopHeadlines(ctx context.Context, country, category string, limit int) ([]models.Document, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("fetcher")
	cfg, err := config.LoadFetcher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}
	if !newsapi.ValidCategory(cfg.Category) {
		log.Error("unknown news category",
			slog.String("category", cfg.Category),
			slog.Any("allowed", newsapi.Categories),
		)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := newsapi.New(newsapi.Config{
		BaseURL:           cfg.NewsAPIBaseURL,
		APIKey:            cfg.NewsAPIKey,
		Timeout:           30 * time.Second,
		RequestsPerSecond: cfg.NewsAPIRPS,
	}, log)

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic,
		MaxAttempts: 5,
	})
	defer writer.Close()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("fetcher running",
		slog.Duration("interval", cfg.Interval),
		slog.String("country", cfg.Country),
		slog.String("category", cfg.Category),
		slog.String("topic", cfg.KafkaTopic),
	)

	// Run immediately on start; failures only skip this cycle.
	runOnce(ctx, log, client, writer, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, client, writer, cfg)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, src headlineSource, w messageWriter, cfg *config.Fetcher) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	docs, err := src.TopHeadlines(subCtx, cfg.Country, cfg.Category, cfg.Limit)
	if err != nil {
		log.Warn("fetch headlines failed (will retry on next interval)", slog.Any("err", err))
		return
	}
	if len(docs) == 0 {
		log.Warn("no articles fetched, skipping update")
		return
	}

	batch := models.Batch{
		ID:        uuid.NewString(),
		FetchedAt: time.Now().UTC(),
		Region:    cfg.Country,
		Category:  cfg.Category,
		Documents: docs,
	}
	if err := publish(subCtx, w, batch); err != nil {
		log.Warn("publish batch failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	log.Info("batch published",
		slog.String("batch", batch.ID),
		slog.Int("documents", len(docs)),
	)
}

func publish(ctx context.Context, w messageWriter, batch models.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(batch.ID), Value: payload}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}
