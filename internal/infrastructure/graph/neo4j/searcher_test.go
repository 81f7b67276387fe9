package neo4j

import (
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func TestQueryTermsLowercasesAndDeduplicates(t *testing.T) {
	terms := queryTerms("Refund REFUND policy for premium plan?")
	want := []string{"refund", "policy", "for", "premium", "plan"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Fatalf("terms = %v, want %v", terms, want)
		}
	}
}

func TestQueryTermsDropsShortTokens(t *testing.T) {
	terms := queryTerms("is it ok to go")
	if len(terms) != 0 {
		t.Fatalf("expected no terms, got %v", terms)
	}
}

func TestQueryTermsKeepsCyrillicWords(t *testing.T) {
	terms := queryTerms("Сколько стоит подписка?")
	joined := strings.Join(terms, ",")
	if joined != "сколько,стоит,подписка" {
		t.Fatalf("unexpected terms: %v", terms)
	}
}

func TestMapRecordsBuildsRankedDocuments(t *testing.T) {
	rows := []*neo4j.Record{
		{
			Keys:   []string{"id", "title", "content", "score"},
			Values: []any{"doc-a", "Refunds", "refund terms", 4.5},
		},
		{
			Keys:   []string{"id", "title", "content", "score"},
			Values: []any{"doc-b", nil, "shipping terms", int64(2)},
		},
	}

	docs := mapRecords(rows)
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	first := docs[0]
	if first.ID != "doc-a" || first.Source != domain.SourceGraph || first.Rank != 1 || first.Score != 4.5 {
		t.Fatalf("unexpected first doc: %+v", first)
	}
	if first.Metadata["title"] != "Refunds" {
		t.Fatalf("expected title metadata, got %+v", first.Metadata)
	}
	second := docs[1]
	if second.Score != 2 || second.Rank != 2 || second.Metadata != nil {
		t.Fatalf("unexpected second doc: %+v", second)
	}
}

func TestMapRecordsSkipsRowsWithoutID(t *testing.T) {
	rows := []*neo4j.Record{
		{
			Keys:   []string{"id", "title", "content", "score"},
			Values: []any{nil, nil, "orphan", 1.0},
		},
		{
			Keys:   []string{"id", "title", "content", "score"},
			Values: []any{"doc-a", nil, "kept", 0.5},
		},
	}

	docs := mapRecords(rows)
	if len(docs) != 1 || docs[0].ID != "doc-a" || docs[0].Rank != 1 {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}
