package credibility

// Tables is the static lookup data a Scorer is built from. A Scorer copies
// the tables at construction, so callers may reuse or modify a Tables value
// afterwards without affecting existing scorers.
type Tables struct {
	// Reputable and Disreputable map registrable domain to a reputation in [0,1].
	// They are expected to be disjoint; Reputable wins otherwise.
	Reputable    map[string]float64
	Disreputable map[string]float64

	Sensationalist        []string
	Balanced              []string
	FactCheckingIndicator []string

	NewStyleTLDs    []string
	EstablishedTLDs []string

	// LongDomain is the length above which a domain is treated as young.
	LongDomain int
}

// DefaultTables returns a fresh copy of the built-in lookup data.
func DefaultTables() Tables {
	return Tables{
		Reputable: map[string]float64{
			"reuters.com":        0.9,
			"ap.org":             0.9,
			"bbc.com":            0.85,
			"npr.org":            0.85,
			"nytimes.com":        0.8,
			"washingtonpost.com": 0.8,
			"wsj.com":            0.8,
			"theguardian.com":    0.75,
			"cnn.com":            0.7,
			"abcnews.go.com":     0.7,
		},
		Disreputable: map[string]float64{
			"infowars.com":      0.1,
			"breitbart.com":     0.2,
			"naturalnews.com":   0.1,
			"beforeitsnews.com": 0.1,
		},
		Sensationalist: []string{
			"shocking", "amazing", "incredible", "unbelievable",
			"you won't believe", "viral", "trending", "breaking",
		},
		Balanced: []string{
			"according to", "reported", "stated", "said", "confirmed",
		},
		FactCheckingIndicator: []string{
			"fact-check", "verified", "confirmed", "official statement",
			"police report", "court documents", "government data",
		},
		NewStyleTLDs:    []string{".xyz", ".top", ".online"},
		EstablishedTLDs: []string{".com", ".org", ".net"},
		LongDomain:      20,
	}
}

func (t Tables) clone() Tables {
	out := t
	out.Reputable = cloneMap(t.Reputable)
	out.Disreputable = cloneMap(t.Disreputable)
	out.Sensationalist = append([]string(nil), t.Sensationalist...)
	out.Balanced = append([]string(nil), t.Balanced...)
	out.FactCheckingIndicator = append([]string(nil), t.FactCheckingIndicator...)
	out.NewStyleTLDs = append([]string(nil), t.NewStyleTLDs...)
	out.EstablishedTLDs = append([]string(nil), t.EstablishedTLDs...)
	return out
}

func cloneMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
