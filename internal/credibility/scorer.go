// Package credibility scores how trustworthy a news document looks from its
// source domain, transport and wording.
package credibility

import (
	"strings"

	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

// Rule names, also used as keys in Weights.
const (
	RuleSourceReputation = "source_reputation"
	RuleContentQuality   = "content_quality"
	RuleFactChecking     = "fact_checking"
	RuleDomainAge        = "domain_age"
	RuleHTTPSSecure      = "https_secure"
)

// Weights of each rule in the overall score. They sum to 1.
var Weights = map[string]float64{
	RuleSourceReputation: 0.3,
	RuleContentQuality:   0.2,
	RuleFactChecking:     0.2,
	RuleDomainAge:        0.2,
	RuleHTTPSSecure:      0.1,
}

const neutral = 0.5

// Input is what a rule sees of a document.
type Input struct {
	URL     string
	Domain  string
	Title   string
	Content string
}

// Rule is one independently evaluated sub-score in [0,1].
type Rule struct {
	Name   string
	Weight float64
	Eval   func(Input) float64
}

// Scorer computes credibility profiles. It is safe for concurrent use.
type Scorer struct {
	tables Tables
	rules  []Rule
}

// NewScorer builds a Scorer over a private copy of tables.
func NewScorer(tables Tables) *Scorer {
	s := &Scorer{tables: tables.clone()}
	if s.tables.LongDomain <= 0 {
		s.tables.LongDomain = DefaultTables().LongDomain
	}
	s.rules = []Rule{
		{Name: RuleSourceReputation, Weight: Weights[RuleSourceReputation], Eval: s.sourceReputation},
		{Name: RuleContentQuality, Weight: Weights[RuleContentQuality], Eval: s.contentQuality},
		{Name: RuleFactChecking, Weight: Weights[RuleFactChecking], Eval: s.factChecking},
		{Name: RuleDomainAge, Weight: Weights[RuleDomainAge], Eval: s.domainAge},
		{Name: RuleHTTPSSecure, Weight: Weights[RuleHTTPSSecure], Eval: httpsSecure},
	}
	return s
}

// Rules returns the scorer's rules in evaluation order.
func (s *Scorer) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Score computes the credibility profile of doc. It never fails: missing or
// malformed fields fall back to neutral values.
func (s *Scorer) Score(doc models.Document) models.CredibilityProfile {
	in := Input{
		URL:     doc.URL,
		Domain:  ExtractDomain(doc.URL),
		Title:   doc.Title,
		Content: doc.Content,
	}

	profile := models.CredibilityProfile{Domain: in.Domain}
	for _, rule := range s.rules {
		v := clamp(rule.Eval(in))
		profile.OverallScore += v * rule.Weight
		switch rule.Name {
		case RuleSourceReputation:
			profile.SourceReputation = v
		case RuleContentQuality:
			profile.ContentQuality = v
		case RuleFactChecking:
			profile.FactChecking = v
		case RuleDomainAge:
			profile.DomainAge = v
		case RuleHTTPSSecure:
			profile.HTTPSSecure = v
		}
	}
	profile.OverallScore = clamp(profile.OverallScore)
	return profile
}

// ScoreBatch returns copies of docs with a credibility profile attached.
func (s *Scorer) ScoreBatch(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		p := s.Score(doc)
		doc.Credibility = &p
		out[i] = doc
	}
	return out
}

// IsDisreputable reports whether rawURL mentions any disreputable domain.
func (s *Scorer) IsDisreputable(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for domain := range s.tables.Disreputable {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

func (s *Scorer) sourceReputation(in Input) float64 {
	if v, ok := s.tables.Reputable[in.Domain]; ok {
		return v
	}
	if v, ok := s.tables.Disreputable[in.Domain]; ok {
		return v
	}
	return neutral
}

func httpsSecure(in Input) float64 {
	return Scheme(in.URL)
}

func (s *Scorer) contentQuality(in Input) float64 {
	text := in.Title + " " + in.Content
	score := neutral

	switch hits := len(processing.MatchPhrases(text, s.tables.Sensationalist)); {
	case hits == 0:
		score += 0.2
	case hits <= 2:
		score += 0.1
	default:
		score -= 0.2
	}

	if len(processing.MatchPhrases(text, s.tables.Balanced)) > 0 {
		score += 0.1
	}
	return score
}

func (s *Scorer) factChecking(in Input) float64 {
	score := neutral
	hits := len(processing.MatchPhrases(in.Content, s.tables.FactCheckingIndicator))
	if hits > 0 {
		score += 0.2
	}
	if hits > 2 {
		score += 0.1
	}
	return score
}

func (s *Scorer) domainAge(in Input) float64 {
	switch {
	case len(in.Domain) > s.tables.LongDomain:
		return 0.3
	case hasAnySuffix(in.Domain, s.tables.NewStyleTLDs):
		return 0.4
	case hasAnySuffix(in.Domain, s.tables.EstablishedTLDs):
		return 0.7
	default:
		return neutral
	}
}

// Label names the credibility band of score.
func Label(score float64) string {
	switch {
	case score >= 0.8:
		return "Highly Credible"
	case score >= 0.6:
		return "Credible"
	case score >= 0.4:
		return "Moderate"
	case score >= 0.2:
		return "Low Credibility"
	default:
		return "Unreliable"
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
