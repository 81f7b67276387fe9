package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

func newRetrievalPipeline(scorer ports.RelevanceScorer, searchers ...ports.DocumentSearcher) *Retrieval {
	return NewRetrieval(
		NewFusion(searchers, 0, 0, 100*time.Millisecond),
		NewReranker(scorer, 0, 0),
		10,
	)
}

func TestRetrieveFusesThenReranks(t *testing.T) {
	vector := &searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-b")}
	fulltext := &searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-c")}
	scorer := &scorerFake{scores: []float64{0.1, 0.9, 0.5}}
	pipeline := newRetrievalPipeline(scorer, vector, fulltext)

	set, err := pipeline.Retrieve(context.Background(), "refund policy",
		domain.SearchFilters{TenantID: "t-1"}, 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if set.RerankFallback {
		t.Fatalf("expected successful rerank, got fallback")
	}
	if got := fusedIDs(set.Results); got[0] != "doc-a" || got[1] != "doc-c" || got[2] != "doc-b" {
		t.Fatalf("expected reranked order doc-a, doc-c, doc-b, got %v", got)
	}
	if scorer.calls != 1 {
		t.Fatalf("expected one scoring round trip, got %d", scorer.calls)
	}
}

func TestRetrieveFallsBackToFusedOrderWhenScorerFails(t *testing.T) {
	vector := &searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-b")}
	fulltext := &searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-c")}
	scorer := &scorerFake{err: errors.New("tei down")}
	pipeline := newRetrievalPipeline(scorer, vector, fulltext)

	set, err := pipeline.Retrieve(context.Background(), "refund policy",
		domain.SearchFilters{TenantID: "t-1"}, 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !set.RerankFallback {
		t.Fatalf("expected rerank fallback flag")
	}
	if got := fusedIDs(set.Results); got[0] != "doc-b" || got[1] != "doc-a" || got[2] != "doc-c" {
		t.Fatalf("expected fused order preserved, got %v", got)
	}
}

func TestRetrieveTruncatesToRequestedK(t *testing.T) {
	vector := &searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-b", "doc-c", "doc-d")}
	pipeline := newRetrievalPipeline(&scorerFake{}, vector)

	set, err := pipeline.Retrieve(context.Background(), "refund policy",
		domain.SearchFilters{TenantID: "t-1"}, 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(set.Results) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(set.Results))
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	pipeline := newRetrievalPipeline(&scorerFake{}, &searcherFake{source: domain.SourceVector})

	_, err := pipeline.Retrieve(context.Background(), "   ", domain.SearchFilters{TenantID: "t-1"}, 3)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetrieveRequiresTenant(t *testing.T) {
	pipeline := newRetrievalPipeline(&scorerFake{}, &searcherFake{source: domain.SourceVector})

	_, err := pipeline.Retrieve(context.Background(), "refund policy", domain.SearchFilters{}, 3)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetrievePropagatesFusionFailure(t *testing.T) {
	vector := &searcherFake{source: domain.SourceVector, err: errors.New("qdrant down")}
	fulltext := &searcherFake{source: domain.SourceFulltext, err: errors.New("pg down")}
	pipeline := newRetrievalPipeline(&scorerFake{}, vector, fulltext)

	_, err := pipeline.Retrieve(context.Background(), "refund policy",
		domain.SearchFilters{TenantID: "t-1"}, 3)
	if !domain.IsKind(err, domain.ErrAllAdaptersFailed) {
		t.Fatalf("expected all adapters failed, got %v", err)
	}
}
