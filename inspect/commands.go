package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DeafMist/news-credibility-rag/internal/credibility"
	"github.com/DeafMist/news-credibility-rag/internal/misinfo"
	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/processing"
)

func newRootCmd(client *http.Client) *cobra.Command {
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Inspect news credibility scores and query a running API",
		SilenceUsage: true,
	}
	root.AddCommand(newScoreCmd(), newQueryCmd(client), newSummaryCmd(client))
	return root
}

type scoreReport struct {
	Credibility      models.CredibilityProfile `json:"credibility"`
	CredibilityLabel string                    `json:"credibility_label"`
	Misinfo          models.MisinfoProfile     `json:"misinfo_analysis"`
	MisinfoLabel     string                    `json:"misinfo_label"`
	Keywords         []string                  `json:"keywords"`
}

func newScoreCmd() *cobra.Command {
	var (
		doc      models.Document
		file     string
		asJSON   bool
		keywords int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a single article offline",
		Long: `Runs the credibility scorer and the misinformation detector over one
article. The article comes from flags or from a JSON document given with
--file (use "-" for stdin).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				loaded, err := readDocument(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				doc = loaded
			}
			doc = processing.NormalizeDocument(doc)
			if doc.Title == "" && doc.Content == "" && doc.URL == "" {
				return errors.New("document needs a title, content or url")
			}

			scorer := credibility.NewScorer(credibility.DefaultTables())
			detector := misinfo.NewDetector(misinfo.DefaultLexicon(), scorer)
			cred := scorer.Score(doc)
			mis := detector.Detect(doc)
			report := scoreReport{
				Credibility:      cred,
				CredibilityLabel: credibility.Label(cred.OverallScore),
				Misinfo:          mis,
				MisinfoLabel:     misinfo.Label(mis.Risk),
				Keywords:         processing.ExtractKeywords(doc.Title+" "+doc.Content, keywords, 4),
			}
			if asJSON {
				return printJSON(cmd, report)
			}
			printScore(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&doc.Title, "title", "", "article title")
	cmd.Flags().StringVar(&doc.Content, "content", "", "article body")
	cmd.Flags().StringVar(&doc.URL, "url", "", "article url")
	cmd.Flags().StringVar(&doc.SourceName, "source", "", "publisher name")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the article from a JSON file, - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	cmd.Flags().IntVar(&keywords, "keywords", 8, "number of keywords to extract")
	return cmd
}

func readDocument(stdin io.Reader, path string) (models.Document, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return models.Document{}, fmt.Errorf("open document: %w", err)
		}
		defer f.Close()
		r = f
	}
	var doc models.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return models.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func printScore(cmd *cobra.Command, r scoreReport) {
	cmd.Printf("Domain:       %s\n", r.Credibility.Domain)
	cmd.Printf("Credibility:  %.2f (%s)\n", r.Credibility.OverallScore, r.CredibilityLabel)
	c := r.Credibility
	cmd.Printf("  source reputation  %.2f\n", c.SourceReputation)
	cmd.Printf("  https              %.2f\n", c.HTTPSSecure)
	cmd.Printf("  content quality    %.2f\n", c.ContentQuality)
	cmd.Printf("  fact checking      %.2f\n", c.FactChecking)
	cmd.Printf("  domain age         %.2f\n", c.DomainAge)
	cmd.Printf("Misinfo risk: %.2f (%s)\n", r.Misinfo.Risk, r.MisinfoLabel)
	for _, c := range r.Misinfo.Concerns {
		cmd.Printf("  - %s\n", c)
	}
	cmd.Printf("Recommendation: %s (%s)\n", r.Misinfo.Recommendation, r.Misinfo.Action)
	if len(r.Keywords) > 0 {
		cmd.Printf("Keywords: %s\n", strings.Join(r.Keywords, ", "))
	}
}

func newQueryCmd(client *http.Client) *cobra.Command {
	var (
		api    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a running API a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{"question": args[0]})
			if err != nil {
				return fmt.Errorf("encode question: %w", err)
			}
			var env models.AnswerEnvelope
			if err := callAPI(cmd, client, http.MethodPost, api, "/query", body, &env); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, env)
			}
			cmd.Println(env.Answer)
			cmd.Println()
			cmd.Printf("Confidence:  %d%%\n", env.Confidence)
			cmd.Printf("Evidence:    %s\n", env.Evidence)
			cmd.Printf("Limitations: %s\n", env.Limitations)
			cmd.Printf("Next steps:  %s\n", env.Recommendations)
			if len(env.Sources) > 0 {
				cmd.Println("Sources:")
				for _, src := range env.Sources {
					cmd.Printf("  %s\n", src)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&api, "api", "http://localhost:8080", "base url of the API")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the envelope as JSON")
	return cmd
}

func newSummaryCmd(client *http.Client) *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print query metrics of a running API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var summary json.RawMessage
			if err := callAPI(cmd, client, http.MethodGet, api, "/metrics/summary", nil, &summary); err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&api, "api", "http://localhost:8080", "base url of the API")
	return cmd
}

func callAPI(cmd *cobra.Command, client *http.Client, method, base, path string, body []byte, out any) error {
	endpoint, err := url.JoinPath(base, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("api returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
