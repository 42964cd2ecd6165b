package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/google/uuid"

	"github.com/DeafMist/news-credibility-rag/internal/models"
	"github.com/DeafMist/news-credibility-rag/internal/rag"
)

const (
	kindChunk    = "chunk"
	kindDocument = "document"

	// maxDocuments bounds Documents to the default index.max_result_window.
	maxDocuments  = 10000
	minCandidates = 100

	// metaArticles is the _meta key holding the number of articles ingested
	// by every generation up to and including this one.
	metaArticles = "articles_processed"
)

// Store keeps every ingestion in its own index and points alias at the
// current one. Publishing swaps the alias in a single _aliases call.
type Store struct {
	es    *elasticsearch.Client
	alias string
	dims  int
	log   *slog.Logger
}

// New instantiates the Elasticsearch store. dims is the embedding size used
// for the dense_vector mapping when a generation has no chunks to infer it from.
func New(addr, alias string, dims int, logger *slog.Logger) (*Store, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Store{es: es, alias: alias, dims: dims, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health checks cluster health.
func (s *Store) Health(ctx context.Context) error {
	res, err := s.es.Cluster.Health(s.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// record is the stored form of both chunks and documents. Only kind, seq and
// embedding are indexed.
type record struct {
	Kind      string               `json:"kind"`
	Seq       int                  `json:"seq"`
	Embedding []float32            `json:"embedding,omitempty"`
	Chunk     *models.IndexedChunk `json:"chunk,omitempty"`
	Document  *models.Document     `json:"document,omitempty"`
}

// Publish writes docs and chunks into a fresh generation index, points the
// alias at it and drops generations older than the one it replaced.
func (s *Store) Publish(ctx context.Context, docs []models.Document, chunks []models.IndexedChunk) (rag.Generation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate generation id: %w", err)
	}
	name := s.alias + "-" + id.String()

	dims := s.dims
	if len(chunks) > 0 && len(chunks[0].Embedding) > 0 {
		dims = len(chunks[0].Embedding)
	}
	articles := len(docs) + s.priorArticles(ctx)
	if err := s.createIndex(ctx, name, dims, articles); err != nil {
		return nil, err
	}

	if err := s.bulkWrite(ctx, name, docs, chunks); err != nil {
		s.dropIndices(ctx, []string{name})
		return nil, err
	}

	previous, err := s.aliasTargets(ctx)
	if err != nil {
		s.dropIndices(ctx, []string{name})
		return nil, err
	}
	if err := s.swapAlias(ctx, name, previous); err != nil {
		s.dropIndices(ctx, []string{name})
		return nil, err
	}

	s.prune(ctx, name, previous)
	s.log.Info("published generation",
		slog.String("index", name),
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Int("articles_total", articles),
	)
	return &Generation{es: s.es, index: name}, nil
}

// priorArticles reads the running article count of the current generation.
// A missing or unreadable count restarts the tally at zero.
func (s *Store) priorArticles(ctx context.Context) int {
	gen, err := s.Current(ctx)
	if err != nil {
		if !errors.Is(err, rag.ErrNotReady) {
			s.log.Warn("read current generation failed", slog.Any("err", err))
		}
		return 0
	}
	n, err := gen.(*Generation).ArticlesProcessed(ctx)
	if err != nil {
		s.log.Warn("read article count failed", slog.String("index", gen.ID()), slog.Any("err", err))
		return 0
	}
	return n
}

// Current resolves the alias to its generation index.
func (s *Store) Current(ctx context.Context) (rag.Generation, error) {
	targets, err := s.aliasTargets(ctx)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, rag.ErrNotReady
	}
	// Generation names embed a time-ordered UUID, so the last one is newest.
	return &Generation{es: s.es, index: targets[len(targets)-1]}, nil
}

func (s *Store) createIndex(ctx context.Context, name string, dims, articles int) error {
	properties := map[string]any{
		"kind":     map[string]any{"type": "keyword"},
		"seq":      map[string]any{"type": "integer"},
		"chunk":    map[string]any{"type": "object", "enabled": false},
		"document": map[string]any{"type": "object", "enabled": false},
	}
	if dims > 0 {
		properties["embedding"] = map[string]any{
			"type":       "dense_vector",
			"dims":       dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"dynamic":    "strict",
			"_meta":      map[string]any{metaArticles: articles},
			"properties": properties,
		},
	}

	res, err := s.es.Indices.Create(name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(esutil.NewJSONReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index %s failed: %s", name, responseText(res))
	}
	return nil
}

func (s *Store) bulkWrite(ctx context.Context, name string, docs []models.Document, chunks []models.IndexedChunk) error {
	if len(docs) == 0 && len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	write := func(id string, rec record) error {
		if err := enc.Encode(map[string]any{"index": map[string]any{"_id": id}}); err != nil {
			return err
		}
		return enc.Encode(rec)
	}

	for i := range docs {
		d := docs[i]
		if err := write(fmt.Sprintf("document-%d", i), record{Kind: kindDocument, Seq: i, Document: &d}); err != nil {
			return fmt.Errorf("encode document %d: %w", i, err)
		}
	}
	for i := range chunks {
		c := chunks[i]
		vec := c.Embedding
		c.Embedding = nil
		if err := write(fmt.Sprintf("chunk-%d", i), record{Kind: kindChunk, Seq: i, Embedding: vec, Chunk: &c}); err != nil {
			return fmt.Errorf("encode chunk %d: %w", i, err)
		}
	}

	res, err := s.es.Bulk(&buf,
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithIndex(name),
		s.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index %s failed: %s", name, responseText(res))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	first := ""
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s: %s: %s", op.ID, op.Error.Type, op.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk index %s: %d items failed, first %s", name, failed, first)
}

// aliasTargets lists the indices behind the alias, sorted by name.
func (s *Store) aliasTargets(ctx context.Context) ([]string, error) {
	res, err := s.es.Indices.GetAlias(
		s.es.Indices.GetAlias.WithContext(ctx),
		s.es.Indices.GetAlias.WithName(s.alias),
	)
	if err != nil {
		return nil, fmt.Errorf("get alias %s: %w", s.alias, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get alias %s failed: %s", s.alias, responseText(res))
	}

	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode alias response: %w", err)
	}
	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) swapAlias(ctx context.Context, name string, previous []string) error {
	actions := make([]map[string]any, 0, len(previous)+1)
	for _, old := range previous {
		actions = append(actions, map[string]any{
			"remove": map[string]any{"index": old, "alias": s.alias},
		})
	}
	actions = append(actions, map[string]any{
		"add": map[string]any{"index": name, "alias": s.alias},
	})

	res, err := s.es.Indices.UpdateAliases(
		esutil.NewJSONReader(map[string]any{"actions": actions}),
		s.es.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("swap alias %s: %w", s.alias, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("swap alias %s failed: %s", s.alias, responseText(res))
	}
	return nil
}

// prune deletes generation indices other than current and the ones it just
// replaced, which queries may still be reading.
func (s *Store) prune(ctx context.Context, current string, replaced []string) {
	res, err := s.es.Cat.Indices(
		s.es.Cat.Indices.WithContext(ctx),
		s.es.Cat.Indices.WithIndex(s.alias+"-*"),
		s.es.Cat.Indices.WithFormat("json"),
		s.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		s.log.Warn("list generations failed", slog.Any("err", err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.log.Warn("list generations failed", slog.String("status", res.Status()))
		return
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		s.log.Warn("decode generation list failed", slog.Any("err", err))
		return
	}

	keep := map[string]bool{current: true}
	for _, r := range replaced {
		keep[r] = true
	}
	var stale []string
	for _, row := range rows {
		if !keep[row.Index] {
			stale = append(stale, row.Index)
		}
	}
	s.dropIndices(ctx, stale)
}

func (s *Store) dropIndices(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	res, err := s.es.Indices.Delete(names,
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		s.log.Warn("delete generations failed", slog.Any("indices", names), slog.Any("err", err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.log.Warn("delete generations failed", slog.Any("indices", names), slog.String("body", responseText(res)))
		return
	}
	s.log.Debug("deleted generations", slog.Any("indices", names))
}

// Generation is one concrete generation index. It keeps answering even after
// the alias moves on, until the index is pruned.
type Generation struct {
	es    *elasticsearch.Client
	index string
}

// ID returns the generation index name.
func (g *Generation) ID() string { return g.index }

// Search runs an approximate kNN query over the generation's chunks.
func (g *Generation) Search(ctx context.Context, vector []float32, k int) ([]models.IndexedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	candidates := k * 10
	if candidates < minCandidates {
		candidates = minCandidates
	}
	body := map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": candidates,
			"filter":         map[string]any{"term": map[string]any{"kind": kindChunk}},
		},
		"_source": map[string]any{"excludes": []string{"embedding"}},
	}

	recs, err := g.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]models.IndexedChunk, 0, len(recs))
	for _, r := range recs {
		if r.Chunk != nil {
			out = append(out, *r.Chunk)
		}
	}
	return out, nil
}

// Documents returns the generation's documents in ingestion order.
func (g *Generation) Documents(ctx context.Context) ([]models.Document, error) {
	body := map[string]any{
		"size":    maxDocuments,
		"query":   map[string]any{"term": map[string]any{"kind": kindDocument}},
		"sort":    []map[string]any{{"seq": map[string]any{"order": "asc"}}},
		"_source": []string{"document"},
	}

	recs, err := g.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(recs))
	for _, r := range recs {
		if r.Document != nil {
			out = append(out, *r.Document)
		}
	}
	return out, nil
}

// ArticlesProcessed returns the running article count stored in the
// generation's mapping metadata.
func (g *Generation) ArticlesProcessed(ctx context.Context) (int, error) {
	res, err := g.es.Indices.GetMapping(
		g.es.Indices.GetMapping.WithContext(ctx),
		g.es.Indices.GetMapping.WithIndex(g.index),
	)
	if err != nil {
		return 0, fmt.Errorf("get mapping %s: %w", g.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("get mapping %s failed: %s", g.index, responseText(res))
	}

	var parsed map[string]struct {
		Mappings struct {
			Meta struct {
				Articles int `json:"articles_processed"`
			} `json:"_meta"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode mapping response: %w", err)
	}
	entry, ok := parsed[g.index]
	if !ok {
		return 0, fmt.Errorf("mapping response has no entry for %s", g.index)
	}
	return entry.Mappings.Meta.Articles, nil
}

func (g *Generation) search(ctx context.Context, body map[string]any) ([]record, error) {
	res, err := g.es.Search(
		g.es.Search.WithContext(ctx),
		g.es.Search.WithIndex(g.index),
		g.es.Search.WithBody(esutil.NewJSONReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", g.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s failed: %s", g.index, responseText(res))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]record, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

func responseText(res *esapi.Response) string {
	data, _ := io.ReadAll(res.Body)
	return strings.TrimSpace(string(data))
}
