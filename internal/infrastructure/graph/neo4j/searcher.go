package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/infrastructure/resilience"
)

// Chunks mention entities; the query is matched against entity names and
// chunks are ranked by the accumulated mention weight.
const chunkQuery = `
MATCH (c:Chunk)-[m:MENTIONS]->(e:Entity)
WHERE toLower(e.name) IN $terms
  AND c.tenant_id = $tenant_id
  AND ($bot_id = '' OR c.bot_id = $bot_id)
  AND (size($tags) = 0 OR any(tag IN coalesce(c.tags, []) WHERE tag IN $tags))
WITH c, sum(m.weight) AS score
ORDER BY score DESC, c.id ASC
LIMIT $k
RETURN c.id AS id, c.title AS title, c.content AS content, score
`

const minTermRunes = 3

type Searcher struct {
	driver   neo4j.DriverWithContext
	database string
	executor *resilience.Executor
}

func NewSearcher(driver neo4j.DriverWithContext, database string, executor *resilience.Executor) *Searcher {
	return &Searcher{driver: driver, database: database, executor: executor}
}

func Connect(uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return driver, nil
}

func (s *Searcher) Source() domain.Source { return domain.SourceGraph }

func (s *Searcher) Search(ctx context.Context, query string, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	tags := filters.Tags
	if tags == nil {
		tags = []string{}
	}
	params := map[string]any{
		"terms":     terms,
		"tenant_id": filters.TenantID,
		"bot_id":    filters.BotID,
		"tags":      tags,
		"k":         k,
	}

	var rows []*neo4j.Record
	call := func(callCtx context.Context) error {
		session := s.driver.NewSession(callCtx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeRead,
			DatabaseName: s.database,
		})
		defer session.Close(callCtx)

		collected, err := session.ExecuteRead(callCtx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(callCtx, chunkQuery, params)
			if err != nil {
				return nil, err
			}
			return result.Collect(callCtx)
		})
		if err != nil {
			return err
		}
		rows, _ = collected.([]*neo4j.Record)
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "neo4j.search", call, classifyGraphError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("graph search: %w", err)
	}
	return mapRecords(rows), nil
}

func mapRecords(rows []*neo4j.Record) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, 0, len(rows))
	for _, record := range rows {
		values := record.AsMap()
		doc := domain.ScoredDocument{
			ID:      stringValue(values["id"]),
			Source:  domain.SourceGraph,
			Content: stringValue(values["content"]),
			Score:   floatValue(values["score"]),
			Rank:    len(out) + 1,
		}
		if doc.ID == "" {
			continue
		}
		if title := stringValue(values["title"]); title != "" {
			doc.Metadata = map[string]string{"title": title}
		}
		out = append(out, doc)
	}
	return out
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) < minTermRunes || seen[field] {
			continue
		}
		seen[field] = true
		terms = append(terms, field)
	}
	return terms
}

func stringValue(v any) string {
	s, ok := v.(string)
	if ok {
		return s
	}
	return ""
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if neo4j.IsConnectivityError(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
