// Package newsapi fetches top headlines from a NewsAPI-compatible endpoint.
package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

// DefaultBaseURL is the public NewsAPI v2 endpoint.
const DefaultBaseURL = "https://newsapi.org/v2"

// Categories accepted by the top-headlines endpoint.
var Categories = []string{
	"general", "business", "technology", "entertainment",
	"health", "science", "sports", "politics",
}

// ErrMissingKey is returned when no API key was configured.
var ErrMissingKey = errors.New("news api key is required")

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests; zero disables the limit.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the headlines endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New builds a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    cfg.HTTPClient,
		limiter: limiter,
		log:     logger,
	}
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type response struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

// TopHeadlines returns up to limit headlines for country and category.
// Articles without a title or any text are skipped. Markup in the text is
// stripped.
func (c *Client) TopHeadlines(ctx context.Context, country, category string, limit int) ([]models.Document, error) {
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("country", country)
	q.Set("category", category)
	q.Set("pageSize", strconv.Itoa(limit))
	endpoint := c.baseURL + "/top-headlines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build headlines request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch headlines: %w", err)
	}
	defer res.Body.Close()

	var parsed response
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode headlines (status %d): %w", res.StatusCode, err)
	}
	if res.StatusCode >= http.StatusBadRequest || parsed.Status != "ok" {
		msg := parsed.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, fmt.Errorf("news api error (status %d, code %q): %s", res.StatusCode, parsed.Code, msg)
	}

	docs := make([]models.Document, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		content := a.Description
		if content == "" {
			content = a.Content
		}
		content = StripHTML(content)
		title := StripHTML(a.Title)
		if content == "" || title == "" {
			continue
		}
		docs = append(docs, models.Document{
			Title:       title,
			Content:     content,
			URL:         a.URL,
			SourceName:  a.Source.Name,
			PublishedAt: a.PublishedAt,
			Author:      a.Author,
		})
	}

	c.log.Debug("fetched headlines",
		slog.String("country", country),
		slog.String("category", category),
		slog.Int("received", len(parsed.Articles)),
		slog.Int("kept", len(docs)),
	)
	return docs, nil
}

// StripHTML returns the visible text of a fragment with whitespace squeezed.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return processing.SqueezeSpace(fragment)
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return processing.SqueezeSpace(fragment)
	}

	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			extract(ch)
		}
	}
	extract(doc)
	return processing.SqueezeSpace(text.String())
}

// ValidCategory reports whether category is one of Categories.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
