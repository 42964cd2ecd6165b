// Package metrics keeps the process-wide query log and mirrors it into
// Prometheus collectors.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/news-credibility-rag/internal/models"
)

// Summary is the aggregate view of the query log.
type Summary struct {
	TotalQueries      int     `json:"total_queries"`
	AvgResponseTime   float64 `json:"avg_response_time"`
	SuccessRate       float64 `json:"success_rate"`
	ArticlesProcessed int     `json:"articles_processed"`
}

// Recorder is an append-only query log. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	history  []models.QuerySample
	articles int
	now      func() time.Time

	queries    *prometheus.CounterVec
	latency    prometheus.Histogram
	confidence prometheus.Histogram
	ingested   prometheus.Counter
}

// NewRecorder creates a recorder and registers its collectors on reg when
// reg is not nil.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		now: time.Now,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "queries_total",
			Help:      "Queries answered, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsrag",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock time spent answering a query.",
			Buckets:   prometheus.DefBuckets,
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsrag",
			Name:      "answer_confidence_ratio",
			Help:      "Reported answer confidence in [0,1].",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsrag",
			Name:      "articles_processed_total",
			Help:      "Articles ingested into the retrieval index.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{r.queries, r.latency, r.confidence, r.ingested} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register collector: %w", err)
			}
		}
	}
	return r, nil
}

// Log appends sample. A zero timestamp is replaced with the current time.
func (r *Recorder) Log(sample models.QuerySample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = r.now()
	}
	sample.SourcesUsed = append([]string(nil), sample.SourcesUsed...)

	r.mu.Lock()
	r.history = append(r.history, sample)
	r.mu.Unlock()

	outcome := "success"
	if sample.Failed {
		outcome = "failure"
	}
	r.queries.WithLabelValues(outcome).Inc()
	r.latency.Observe(sample.ResponseTime)
	r.confidence.Observe(sample.ConfidenceScore)
}

// ArticlesProcessed adds n to the ingested article count.
func (r *Recorder) ArticlesProcessed(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.articles += n
	r.mu.Unlock()
	r.ingested.Add(float64(n))
}

// Summary reports totals over the whole log. SuccessRate is the percentage
// of logged queries not marked Failed, 100 for an empty log.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		TotalQueries:      len(r.history),
		SuccessRate:       100.0,
		ArticlesProcessed: r.articles,
	}
	if len(r.history) == 0 {
		return s
	}

	total := 0.0
	failed := 0
	for _, q := range r.history {
		total += q.ResponseTime
		if q.Failed {
			failed++
		}
	}
	n := float64(len(r.history))
	s.AvgResponseTime = round2(total / n)
	s.SuccessRate = round2(100 * (n - float64(failed)) / n)
	return s
}

// History returns a copy of the log.
func (r *Recorder) History() []models.QuerySample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.QuerySample(nil), r.history...)
}

type export struct {
	QueryHistory    []models.QuerySample `json:"query_history"`
	ExportTimestamp time.Time            `json:"export_timestamp"`
}

// Export writes the log as indented JSON.
func (r *Recorder) Export(w io.Writer) error {
	payload := export{QueryHistory: r.History(), ExportTimestamp: r.now()}
	if payload.QueryHistory == nil {
		payload.QueryHistory = []models.QuerySample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode metrics export: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
