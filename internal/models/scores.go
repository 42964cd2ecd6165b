package models

// CredibilityProfile is the multi-factor trust score of one document.
type CredibilityProfile struct {
	OverallScore     float64 `json:"overall_score"`
	SourceReputation float64 `json:"source_reputation"`
	HTTPSSecure      float64 `json:"https_secure"`
	ContentQuality   float64 `json:"content_quality"`
	FactChecking     float64 `json:"fact_checking"`
	DomainAge        float64 `json:"domain_age"`
	Domain           string  `json:"domain"`
}

// Recommendation is the action suggested by a misinformation assessment.
type Recommendation string

const (
	RecommendTrust     Recommendation = "trust"
	RecommendVerify    Recommendation = "verify"
	RecommendFactCheck Recommendation = "fact-check"
)

// MisinfoProfile is the heuristic misinformation assessment of one document.
type MisinfoProfile struct {
	Risk           float64        `json:"misinfo_risk"`
	Concerns       []string       `json:"concerns"`
	Evidence       []string       `json:"evidence"`
	Recommendation Recommendation `json:"recommendation"`
	Action         string         `json:"action"`
	Analysis       string         `json:"analysis"`
}
