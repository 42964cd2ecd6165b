package models

import "time"

// Document is a single fetched news article. Credibility and Misinfo are
// attached once at ingestion time and never recomputed.
type Document struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	SourceName  string `json:"source"`
	PublishedAt string `json:"published_at"`
	Author      string `json:"author"`

	Credibility *CredibilityProfile `json:"credibility,omitempty"`
	Misinfo     *MisinfoProfile     `json:"misinfo_analysis,omitempty"`
}

// OverallCredibility returns the attached overall score or the neutral 0.5.
func (d Document) OverallCredibility() float64 {
	if d.Credibility == nil {
		return 0.5
	}
	return d.Credibility.OverallScore
}

// MisinfoRisk returns the attached risk or the neutral 0.5.
func (d Document) MisinfoRisk() float64 {
	if d.Misinfo == nil {
		return 0.5
	}
	return d.Misinfo.Risk
}

// Batch groups the documents of one fetch cycle.
type Batch struct {
	ID        string     `json:"id"`
	FetchedAt time.Time  `json:"fetched_at"`
	Region    string     `json:"region"`
	Category  string     `json:"category"`
	Documents []Document `json:"documents"`
}
