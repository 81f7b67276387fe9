package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dialogiq/context-engine/internal/infrastructure/resilience"
)

// Client embeds query text through an Ollama-style /api/embeddings endpoint.
// The embedding model itself is an opaque external service.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds an embedding client. executor may be nil, in which case calls
// go out unprotected.
func New(baseURL, model string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model":  c.model,
		"prompt": text,
	}
	var embedResp struct {
		Embedding []float32 `json:"embedding"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embeddings", payload, &embedResp, "embed")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.embed", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding from model %s", c.model)
	}
	return embedResp.Embedding, nil
}
