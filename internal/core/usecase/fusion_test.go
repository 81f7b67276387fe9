package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

type searcherFake struct {
	source domain.Source
	docs   []domain.ScoredDocument
	err    error
	delay  time.Duration
}

func (f *searcherFake) Source() domain.Source { return f.source }

func (f *searcherFake) Search(ctx context.Context, _ string, _ domain.SearchFilters, _ int) ([]domain.ScoredDocument, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.ScoredDocument(nil), f.docs...), nil
}

func searchDocs(source domain.Source, ids ...string) []domain.ScoredDocument {
	docs := make([]domain.ScoredDocument, 0, len(ids))
	for i, id := range ids {
		docs = append(docs, domain.ScoredDocument{
			ID:      id,
			Source:  source,
			Content: "passage " + id,
			Score:   1.0 - float64(i)*0.1,
			Rank:    i + 1,
		})
	}
	return docs
}

func fusedIDs(results []domain.FusedResult) []string {
	ids := make([]string, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.ID)
	}
	return ids
}

func TestFuseMergesDuplicatesAcrossSources(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-b")},
		&searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-c")},
		&searcherFake{source: domain.SourceGraph, docs: searchDocs(domain.SourceGraph, "doc-b")},
	}, 0, 0, 0)

	set, err := fusion.Fuse(context.Background(), "refund policy", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if set.Degraded {
		t.Fatalf("expected healthy fusion, got degraded with failures %v", set.FailedSources)
	}
	if got := fusedIDs(set.Results); len(got) != 3 || got[0] != "doc-b" {
		t.Fatalf("expected doc-b ranked first, got %v", got)
	}
	if len(set.Results[0].ContributingSources) != 3 {
		t.Fatalf("expected doc-b credited to all sources, got %v", set.Results[0].ContributingSources)
	}
}

func TestFuseTwoMiddleRanksBeatOneTop(t *testing.T) {
	// doc-x sits at rank 2 in two lists; doc-a leads a single list. The
	// summed reciprocal ranks must put doc-x first.
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-x")},
		&searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-x")},
	}, 0, 0, 0)

	set, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if got := fusedIDs(set.Results); got[0] != "doc-x" {
		t.Fatalf("expected doc-x first, got %v", got)
	}
}

func TestFuseDeterministicOrdering(t *testing.T) {
	searchers := []ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-c", "doc-a", "doc-d")},
		&searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-a")},
		&searcherFake{source: domain.SourceGraph, docs: searchDocs(domain.SourceGraph, "doc-d", "doc-b")},
	}
	fusion := NewFusion(searchers, 0, 0, 0)

	first, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
		if err != nil {
			t.Fatalf("Fuse() error = %v", err)
		}
		a, b := fusedIDs(first.Results), fusedIDs(again.Results)
		if len(a) != len(b) {
			t.Fatalf("ordering not deterministic: %v vs %v", a, b)
		}
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("ordering not deterministic at %d: %v vs %v", j, a, b)
			}
		}
	}
}

func TestFuseEqualScoresTieBreakByID(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-b")},
		&searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-a")},
	}, 0, 0, 0)

	set, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if got := fusedIDs(set.Results); got[0] != "doc-a" || got[1] != "doc-b" {
		t.Fatalf("expected tie broken by id, got %v", got)
	}
}

func TestFuseDegradedOnSingleSourceFailure(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a", "doc-b")},
		&searcherFake{source: domain.SourceFulltext, docs: searchDocs(domain.SourceFulltext, "doc-b", "doc-c")},
		&searcherFake{source: domain.SourceGraph, err: errors.New("bolt: connection refused")},
	}, 0, 0, 0)

	set, err := fusion.Fuse(context.Background(), "refund policy", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if !set.Degraded {
		t.Fatalf("expected degraded fusion")
	}
	if len(set.FailedSources) != 1 || set.FailedSources[0] != domain.SourceGraph {
		t.Fatalf("expected graph marked failed, got %v", set.FailedSources)
	}
	if got := fusedIDs(set.Results); len(got) != 3 || got[0] != "doc-b" || got[1] != "doc-a" || got[2] != "doc-c" {
		t.Fatalf("expected order doc-b, doc-a, doc-c, got %v", got)
	}
}

func TestFuseErrorOnlyWhenAllSourcesFail(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, err: errors.New("qdrant down")},
		&searcherFake{source: domain.SourceFulltext, err: errors.New("pg down")},
		&searcherFake{source: domain.SourceGraph, err: errors.New("neo4j down")},
	}, 0, 0, 0)

	_, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err == nil {
		t.Fatalf("expected error when every source fails")
	}
	if !domain.IsKind(err, domain.ErrAllAdaptersFailed) {
		t.Fatalf("expected all-adapters-failed kind, got %v", err)
	}
}

func TestFuseSlowSourceTimesOutAndDegrades(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a")},
		&searcherFake{source: domain.SourceGraph, docs: searchDocs(domain.SourceGraph, "doc-b"), delay: 500 * time.Millisecond},
	}, 0, 0, 20*time.Millisecond)

	set, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if !set.Degraded {
		t.Fatalf("expected degraded fusion after timeout")
	}
	if len(set.FailedSources) != 1 || set.FailedSources[0] != domain.SourceGraph {
		t.Fatalf("expected graph timed out, got %v", set.FailedSources)
	}
	if got := fusedIDs(set.Results); len(got) != 1 || got[0] != "doc-a" {
		t.Fatalf("expected only the fast source to contribute, got %v", got)
	}
}

func TestFuseTimeoutErrorCarriesTimeoutKind(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "doc-a"), delay: 500 * time.Millisecond},
	}, 0, 0, 20*time.Millisecond)

	_, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if err == nil {
		t.Fatalf("expected error when the only source times out")
	}
	if !domain.IsKind(err, domain.ErrAllAdaptersFailed) || !domain.IsKind(err, domain.ErrAdapterTimeout) {
		t.Fatalf("expected timeout classified inside the failure, got %v", err)
	}
}

func TestFuseTruncatesToRequestedSize(t *testing.T) {
	fusion := NewFusion([]ports.DocumentSearcher{
		&searcherFake{source: domain.SourceVector, docs: searchDocs(domain.SourceVector, "d1", "d2", "d3", "d4", "d5")},
	}, 0, 0, 0)

	set, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 2)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if len(set.Results) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(set.Results))
	}
}

func TestFuseWithoutSourcesFails(t *testing.T) {
	fusion := NewFusion(nil, 0, 0, 0)
	_, err := fusion.Fuse(context.Background(), "q", domain.SearchFilters{TenantID: "t-1"}, 10)
	if !domain.IsKind(err, domain.ErrAllAdaptersFailed) {
		t.Fatalf("expected all-adapters-failed kind, got %v", err)
	}
}
