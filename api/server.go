package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/news-credibility-rag/internal/app"
	"github.com/DeafMist/news-credibility-rag/internal/config"
	"github.com/DeafMist/news-credibility-rag/internal/credibility"
	"github.com/DeafMist/news-credibility-rag/internal/misinfo"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

type server struct {
	log     *slog.Logger
	cfg     *config.API
	rt      *app.Runtime
	metrics http.Handler
}

func newServer(log *slog.Logger, cfg *config.API, rt *app.Runtime, gatherer prometheus.Gatherer) *server {
	return &server{
		log:     log,
		cfg:     cfg,
		rt:      rt,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/query", s.handleQueryGet)
	r.Post("/query", s.handleQueryPost)
	r.Post("/ingest", s.handleIngest)
	r.Post("/documents/score", s.handleScore)
	r.Route("/metrics", func(r chi.Router) {
		r.Get("/", s.metrics.ServeHTTP)
		r.Get("/summary", s.handleSummary)
		r.Get("/export", s.handleExport)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type scoreResponse struct {
	Credibility      models.CredibilityProfile `json:"credibility"`
	CredibilityLabel string                    `json:"credibility_label"`
	Misinfo          models.MisinfoProfile     `json:"misinfo_analysis"`
	MisinfoLabel     string                    `json:"misinfo_label"`
	Keywords         []string                  `json:"keywords"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.rt.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.rt.Backend})
}

func (s *server) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, r.URL.Query().Get("q"))
}

func (s *server) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.answer(w, r, req.Question)
}

func (s *server) answer(w http.ResponseWriter, r *http.Request, question string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, s.rt.Pipeline.Query(ctx, question))
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var docs []models.Document
	if err := s.decode(w, r, &docs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	for i := range docs {
		docs[i] = processing.NormalizeDocument(docs[i])
	}

	report, err := s.rt.Pipeline.Ingest(r.Context(), docs)
	if err != nil {
		s.log.Error("ingest failed", slog.Int("documents", len(docs)), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleScore(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := s.decode(w, r, &doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	doc = processing.NormalizeDocument(doc)
	if doc.Title == "" && doc.Content == "" && doc.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document needs a title, content or url"})
		return
	}

	cred := s.rt.Scorer.Score(doc)
	mis := s.rt.Detector.Detect(doc)
	writeJSON(w, http.StatusOK, scoreResponse{
		Credibility:      cred,
		CredibilityLabel: credibility.Label(cred.OverallScore),
		Misinfo:          mis,
		MisinfoLabel:     misinfo.Label(mis.Risk),
		Keywords:         processing.ExtractKeywords(doc.Title+" "+doc.Content, 8, 4),
	})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Summary(r.Context()))
}

func (s *server) handleExport(w http.ResponseWriter, _ *http.Request) {
	name := fmt.Sprintf("query_metrics_%s.json", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := s.rt.Recorder.Export(w); err != nil {
		s.log.Warn("export metrics", slog.Any("err", err))
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxBodyBytes))
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
