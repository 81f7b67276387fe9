package tei

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
	"github.com/dialogiq/context-engine/internal/infrastructure/resilience"
)

// Client scores (query, passage) pairs through a text-embeddings-inference
// style POST /rerank endpoint backed by a cross-encoder model.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		executor:   executor,
	}
}

func (c *Client) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"query": query,
		"texts": passages,
	}
	if c.model != "" {
		payload["model"] = c.model
	}

	var hits []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/rerank", payload, &hits)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "rerank.score", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankerUnavailable, "score pairs", err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(passages) {
			return nil, domain.WrapError(domain.ErrRerankerUnavailable, "score pairs",
				fmt.Errorf("score index %d out of range for %d passages", hit.Index, len(passages)))
		}
		scores[hit.Index] = hit.Score
		seen[hit.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, domain.WrapError(domain.ErrRerankerUnavailable, "score pairs",
				fmt.Errorf("no score returned for passage %d", i))
		}
	}
	return scores, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(excerpt),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
