package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
	"github.com/dialogiq/context-engine/internal/infrastructure/resilience"
)

// Searcher is the dense retrieval source: it embeds the query text and runs
// a similarity search against a qdrant collection. Chunk payloads carry the
// same doc_id the other stores index under.
type Searcher struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	executor   *resilience.Executor
}

func NewSearcher(baseURL, collection string, embedder ports.Embedder, executor *resilience.Executor) *Searcher {
	return &Searcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		embedder:   embedder,
		executor:   executor,
	}
}

func (s *Searcher) Source() domain.Source { return domain.SourceVector }

func (s *Searcher) Search(ctx context.Context, query string, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var docs []domain.ScoredDocument
	call := func(callCtx context.Context) error {
		found, err := s.searchPoints(callCtx, vector, filters, k)
		if err != nil {
			return err
		}
		docs = found
		return nil
	}

	if s.executor != nil {
		err = s.executor.Execute(ctx, "qdrant.search", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Searcher) searchPoints(ctx context.Context, vector []float32, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if clauses := filterClauses(filters); len(clauses) > 0 {
		reqBody["filter"] = map[string]any{"must": clauses}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Operation:  "qdrant search",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(excerpt),
		}
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ScoredDocument, 0, len(searchResp.Result))
	for i, r := range searchResp.Result {
		doc := domain.ScoredDocument{
			ID:      getStringPayload(r.Payload, "doc_id"),
			Source:  domain.SourceVector,
			Content: getStringPayload(r.Payload, "text"),
			Score:   r.Score,
			Rank:    i + 1,
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("%v", r.ID)
		}
		if title := getStringPayload(r.Payload, "title"); title != "" {
			doc.Metadata = map[string]string{"title": title}
		}
		out = append(out, doc)
	}
	return out, nil
}

func filterClauses(filters domain.SearchFilters) []map[string]any {
	clauses := make([]map[string]any, 0, 3)
	if filters.TenantID != "" {
		clauses = append(clauses, map[string]any{
			"key":   "tenant_id",
			"match": map[string]any{"value": filters.TenantID},
		})
	}
	if filters.BotID != "" {
		clauses = append(clauses, map[string]any{
			"key":   "bot_id",
			"match": map[string]any{"value": filters.BotID},
		})
	}
	if len(filters.Tags) > 0 {
		clauses = append(clauses, map[string]any{
			"key":   "tags",
			"match": map[string]any{"any": filters.Tags},
		})
	}
	return clauses
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
