// Package factcheck turns retrieved context and the scored document set into
// an answer with a bounded confidence and human-readable caveats.
package factcheck

import (
	"fmt"
	"math"
	"strings"

	"github.com/DeafMist/news-credibility-rag/internal/models"
)

// MaxConfidence caps the reported confidence; answers are never presented
// as near-certain.
const MaxConfidence = 85

const (
	baseConfidence      = 50.0
	perSourceConfidence = 5.0
	credibilityWeight   = 20.0
	diversityWeight     = 10.0

	contextPreview = 500
	separator      = "; "
)

// Result is the fact-checked answer for one question.
type Result struct {
	Answer          string
	Confidence      int
	Evidence        string
	Limitations     string
	Recommendations string
	Sources         []string
	SourceCount     int
	AvgCredibility  float64
	SourceDiversity float64
}

// Checker synthesises answers. The zero value is ready to use.
type Checker struct{}

// New returns a Checker.
func New() *Checker {
	return &Checker{}
}

// Answer builds the result for question from context and docs. It never
// fails; empty inputs produce default wording and neutral averages.
func (c *Checker) Answer(question, context string, docs []models.Document) Result {
	sources := SourceURLs(docs)
	distinct := countDistinct(sources)
	diversity := Diversity(sources)
	avg := AverageCredibility(docs)

	return Result{
		Answer:          answerText(context, len(docs), len(sources), distinct),
		Confidence:      Confidence(len(sources), avg, diversity),
		Evidence:        evidenceText(len(sources), avg),
		Limitations:     limitations(question, len(sources), avg),
		Recommendations: recommendations(docs, len(sources), avg),
		Sources:         sources,
		SourceCount:     len(sources),
		AvgCredibility:  avg,
		SourceDiversity: diversity,
	}
}

// Confidence combines source volume, trust and diversity into a score in
// [0, MaxConfidence].
func Confidence(sourceCount int, avgCredibility, diversity float64) int {
	raw := baseConfidence +
		perSourceConfidence*float64(sourceCount) +
		credibilityWeight*avgCredibility +
		diversityWeight*diversity
	raw = math.Min(raw, MaxConfidence)
	if raw < 0 {
		raw = 0
	}
	return int(raw)
}

// SourceURLs returns the non-empty URLs of docs in order.
func SourceURLs(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			out = append(out, d.URL)
		}
	}
	return out
}

// Diversity is the share of distinct values in urls, capped at 1.
func Diversity(urls []string) float64 {
	n := len(urls)
	if n == 0 {
		n = 1
	}
	return math.Min(float64(countDistinct(urls))/float64(n), 1.0)
}

// AverageCredibility is the mean overall score of docs, 0.5 when empty.
func AverageCredibility(docs []models.Document) float64 {
	if len(docs) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, d := range docs {
		sum += d.OverallCredibility()
	}
	return sum / float64(len(docs))
}

func answerText(context string, docCount, sourceCount, distinct int) string {
	info := context
	if strings.TrimSpace(info) == "" {
		info = "No information available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on analysis of %d news articles:\n\n", docCount)
	b.WriteString(prefix(info, contextPreview))
	b.WriteString("...\n\n")
	fmt.Fprintf(&b, "Sources analyzed: %d articles from %d different sources", sourceCount, distinct)
	return b.String()
}

func evidenceText(sourceCount int, avg float64) string {
	out := fmt.Sprintf("Information from %d news sources", sourceCount)
	switch {
	case avg > 0.7:
		out += " with high credibility scores"
	case avg < 0.4:
		out += " with mixed credibility"
	}
	return out
}

func limitations(question string, sourceCount int, avg float64) string {
	var notes []string
	if sourceCount < 3 {
		notes = append(notes, "Limited number of sources")
	}
	if avg < 0.6 {
		notes = append(notes, "Mixed source credibility")
	}
	if complexity(question) > 0.8 {
		notes = append(notes, "Complex query may require more analysis")
	}
	if len(notes) == 0 {
		return "Standard limitations apply"
	}
	return strings.Join(notes, separator)
}

func recommendations(docs []models.Document, sourceCount int, avg float64) string {
	var notes []string
	if sourceCount < 5 {
		notes = append(notes, "Check additional sources")
	}
	if avg < 0.7 {
		notes = append(notes, "Verify with fact-checking websites")
	}
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Title), "breaking") {
			notes = append(notes, "Breaking news may need time for verification")
			break
		}
	}
	if len(notes) == 0 {
		return "Standard fact-checking recommended"
	}
	return strings.Join(notes, separator)
}

func complexity(question string) float64 {
	return float64(len(strings.Fields(question))) / 10.0
}

func countDistinct(items []string) int {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it] = struct{}{}
	}
	return len(seen)
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
