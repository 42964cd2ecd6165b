// Package misinfo flags wording and sourcing patterns that commonly
// accompany misinformation.
package misinfo

import (
	"fmt"
	"strings"

	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

// Thresholds for the recommendation derived from the final risk.
const (
	FactCheckThreshold = 0.7
	VerifyThreshold    = 0.4
)

// Lexicon holds the phrase lists the detector matches against.
type Lexicon struct {
	Sensationalist        []string
	MisinfoIndicators     []string
	Unverified            []string
	FactCheckingIndicator []string
}

// DefaultLexicon returns a fresh copy of the built-in phrase lists.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Sensationalist: []string{
			"shocking", "amazing", "incredible", "unbelievable",
			"you won't believe", "viral", "trending", "breaking",
			"exclusive", "secret", "hidden", "revealed",
			"mind-blowing", "stunning", "outrageous",
		},
		MisinfoIndicators: []string{
			"fake news", "conspiracy", "hoax", "debunked", "false claim",
			"unverified", "anonymous sources", "rumor", "allegedly",
			"sources say", "insider claims", "exclusive scoop",
		},
		Unverified: []string{
			"sources say", "anonymous", "allegedly", "rumored", "unconfirmed",
		},
		FactCheckingIndicator: []string{
			"fact-check", "verified", "confirmed", "official statement",
			"police report", "court documents", "government data",
			"peer-reviewed", "study published", "research shows",
			"according to official", "confirmed by", "verified by",
		},
	}
}

// Signal is the outcome of one signal family for one document.
type Signal struct {
	Contribution float64
	Matches      []string
	Concern      string
	Evidence     string
}

// Fired reports whether the family contributed anything.
func (s Signal) Fired() bool {
	return s.Contribution != 0
}

// Family is an independent risk rule.
type Family struct {
	Name string
	Eval func(models.Document) Signal
}

// DomainMatcher reports whether a URL belongs to a known disreputable source.
type DomainMatcher interface {
	IsDisreputable(rawURL string) bool
}

// Detector scores misinformation risk. It is safe for concurrent use.
type Detector struct {
	lex      Lexicon
	domains  DomainMatcher
	families []Family
}

// NewDetector builds a detector over a private copy of lex. domains may be
// nil, in which case the source family never fires.
func NewDetector(lex Lexicon, domains DomainMatcher) *Detector {
	d := &Detector{
		lex: Lexicon{
			Sensationalist:        append([]string(nil), lex.Sensationalist...),
			MisinfoIndicators:     append([]string(nil), lex.MisinfoIndicators...),
			Unverified:            append([]string(nil), lex.Unverified...),
			FactCheckingIndicator: append([]string(nil), lex.FactCheckingIndicator...),
		},
		domains: domains,
	}
	d.families = []Family{
		{Name: "sensationalist", Eval: d.sensationalist},
		{Name: "misinfo_indicators", Eval: d.misinfoIndicators},
		{Name: "unverified_claims", Eval: d.unverified},
		{Name: "unreliable_source", Eval: d.unreliableSource},
		{Name: "fact_checking", Eval: d.factChecking},
	}
	return d
}

// Families returns the detector's signal families in evaluation order.
func (d *Detector) Families() []Family {
	return append([]Family(nil), d.families...)
}

// Detect assesses doc. Risk is accumulated across all families and clamped
// to [0,1] only at the end.
func (d *Detector) Detect(doc models.Document) models.MisinfoProfile {
	raw := 0.0
	concerns := make([]string, 0, len(d.families))
	evidence := make([]string, 0, len(d.families))

	for _, family := range d.families {
		sig := family.Eval(doc)
		if !sig.Fired() {
			continue
		}
		raw += sig.Contribution
		if sig.Concern != "" {
			concerns = append(concerns, sig.Concern)
		}
		if sig.Evidence != "" {
			evidence = append(evidence, sig.Evidence)
		}
	}

	risk := clamp(raw)
	rec, action := recommend(risk)
	return models.MisinfoProfile{
		Risk:           risk,
		Concerns:       concerns,
		Evidence:       evidence,
		Recommendation: rec,
		Action:         action,
		Analysis:       fmt.Sprintf("Comprehensive analysis: %d risk factors, %d evidence points", len(concerns), len(evidence)),
	}
}

// DetectBatch returns copies of docs with a misinformation profile attached.
func (d *Detector) DetectBatch(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		p := d.Detect(doc)
		doc.Misinfo = &p
		out[i] = doc
	}
	return out
}

func (d *Detector) sensationalist(doc models.Document) Signal {
	return phraseSignal(doc.Title, d.lex.Sensationalist, 0.2,
		"Sensationalist language", "Found sensationalist words")
}

func (d *Detector) misinfoIndicators(doc models.Document) Signal {
	return phraseSignal(doc.Content, d.lex.MisinfoIndicators, 0.3,
		"Misinformation indicators", "Found misinfo keywords")
}

func (d *Detector) unverified(doc models.Document) Signal {
	return phraseSignal(doc.Content, d.lex.Unverified, 0.25,
		"Unverified claims", "Found unverified indicators")
}

func (d *Detector) unreliableSource(doc models.Document) Signal {
	if d.domains == nil || doc.URL == "" || !d.domains.IsDisreputable(doc.URL) {
		return Signal{}
	}
	return Signal{
		Contribution: 0.4,
		Concern:      "Unreliable source detected",
		Evidence:     "Source domain: " + strings.ToLower(doc.URL),
	}
}

func (d *Detector) factChecking(doc models.Document) Signal {
	hits := processing.MatchPhrases(doc.Content, d.lex.FactCheckingIndicator)
	if len(hits) == 0 {
		return Signal{}
	}
	return Signal{
		Contribution: -0.1 * float64(len(hits)),
		Matches:      hits,
		Evidence:     "Found fact-checking indicators: " + quoteList(hits),
	}
}

func phraseSignal(text string, phrases []string, weight float64, concern, evidence string) Signal {
	hits := processing.MatchPhrases(text, phrases)
	if len(hits) == 0 {
		return Signal{}
	}
	return Signal{
		Contribution: weight * float64(len(hits)),
		Matches:      hits,
		Concern:      fmt.Sprintf("%s (%d instances)", concern, len(hits)),
		Evidence:     evidence + ": " + quoteList(hits),
	}
}

func recommend(risk float64) (models.Recommendation, string) {
	switch {
	case risk >= FactCheckThreshold:
		return models.RecommendFactCheck, "High risk - verify with multiple sources"
	case risk >= VerifyThreshold:
		return models.RecommendVerify, "Moderate risk - check additional sources"
	default:
		return models.RecommendTrust, "Low risk - appears reliable"
	}
}

// Label names the risk band of risk.
func Label(risk float64) string {
	switch {
	case risk >= 0.8:
		return "High Risk"
	case risk >= 0.6:
		return "Moderate Risk"
	case risk >= 0.4:
		return "Low Risk"
	default:
		return "Likely Factual"
	}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
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
