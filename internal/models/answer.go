package models

import "time"

// IndexedChunk is an embeddable window of a document's text. Scores are
// copied from the parent document, never computed per chunk.
type IndexedChunk struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	Embedding        []float32 `json:"embedding,omitempty"`
	SourceTitle      string    `json:"source_title"`
	SourceURL        string    `json:"source_url"`
	SourceName       string    `json:"source_name"`
	CredibilityScore float64   `json:"credibility_score"`
	MisinfoRisk      float64   `json:"misinfo_risk"`
	Position         int       `json:"position"`
}

// AnswerEnvelope is the full result of one query.
type AnswerEnvelope struct {
	Answer          string   `json:"answer"`
	Confidence      int      `json:"confidence"`
	Evidence        string   `json:"evidence"`
	Limitations     string   `json:"limitations"`
	Recommendations string   `json:"recommendations"`
	Sources         []string `json:"sources"`
	ResponseTime    float64  `json:"response_time"`
	RetrievedDocs   int      `json:"retrieved_docs"`
	AvgCredibility  float64  `json:"avg_credibility"`
	AvgMisinfoRisk  float64  `json:"avg_misinfo_risk"`
	SourceDiversity float64  `json:"source_diversity"`
	SourceCount     int      `json:"source_count"`
	GenerationID    string   `json:"generation_id,omitempty"`
}

// QuerySample is one entry of the metrics log.
type QuerySample struct {
	Query            string    `json:"query"`
	ResponseTime     float64   `json:"response_time"`
	ConfidenceScore  float64   `json:"confidence_score"`
	CredibilityScore float64   `json:"credibility_score"`
	MisinfoRisk      float64   `json:"misinfo_risk"`
	Timestamp        time.Time `json:"timestamp"`
	RetrievedDocs    int       `json:"retrieved_docs"`
	SourcesUsed      []string  `json:"sources_used"`
	Failed           bool      `json:"failed"`
}
