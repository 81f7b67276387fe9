package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

// Retrieval is the fused retrieval pipeline: concurrent multi-source fan-out,
// rank fusion, then cross-encoder reranking of the head.
type Retrieval struct {
	fusion     *Fusion
	reranker   *Reranker
	candidateK int
}

func NewRetrieval(fusion *Fusion, reranker *Reranker, candidateK int) *Retrieval {
	if candidateK <= 0 {
		candidateK = defaultKFused
	}
	return &Retrieval{fusion: fusion, reranker: reranker, candidateK: candidateK}
}

// Retrieve returns the top-k fused and reranked passages for a query.
func (r *Retrieval) Retrieve(ctx context.Context, query string, filters domain.SearchFilters, k int) (*domain.FusedSet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query"))
	}
	if strings.TrimSpace(filters.TenantID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("missing tenant_id"))
	}

	set, err := r.fusion.Fuse(ctx, query, filters, r.candidateK)
	if err != nil {
		return nil, err
	}

	results, fallback := r.reranker.Rerank(ctx, query, set.Results, k)
	set.Results = results
	set.RerankFallback = fallback
	return set, nil
}
