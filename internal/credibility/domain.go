package credibility

import (
	"net"
	"net/url"
	"strings"
)

// ExtractDomain returns the lower-cased host of rawURL with any "www." prefix
// and port removed. A URL without a scheme is read as host[/path]. Anything
// that cannot be parsed yields "".
func ExtractDomain(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}

// Scheme classifies rawURL's transport: 1 for https, 0 for http, 0.5 otherwise.
func Scheme(rawURL string) float64 {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	switch {
	case strings.HasPrefix(lower, "https://"):
		return 1.0
	case strings.HasPrefix(lower, "http://"):
		return 0.0
	default:
		return 0.5
	}
}
