package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

// Searcher is the keyword retrieval source: tsvector rank over the chunks
// table. User text goes through plainto_tsquery('simple', …), so it needs no
// sanitizing on the way in.
type Searcher struct {
	db *sql.DB
}

func NewSearcher(db *sql.DB) *Searcher {
	return &Searcher{db: db}
}

func (s *Searcher) Source() domain.Source { return domain.SourceFulltext }

func (s *Searcher) Search(ctx context.Context, query string, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error) {
	conditions := []string{
		"tsv @@ plainto_tsquery('simple', $1)",
		"tenant_id = $2",
	}
	args := []any{query, filters.TenantID}

	if filters.BotID != "" {
		args = append(args, filters.BotID)
		conditions = append(conditions, fmt.Sprintf("bot_id = $%d", len(args)))
	}
	if len(filters.Tags) > 0 {
		args = append(args, strings.Join(filters.Tags, ","))
		conditions = append(conditions, fmt.Sprintf("tags && string_to_array($%d, ',')", len(args)))
	}
	args = append(args, k)

	stmt := fmt.Sprintf(`
SELECT id, title, content, ts_rank(tsv, plainto_tsquery('simple', $1)) AS rank
FROM chunks
WHERE %s
ORDER BY rank DESC, id ASC
LIMIT $%d
`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredDocument
	for rows.Next() {
		var (
			id      string
			title   sql.NullString
			content string
			rank    float64
		)
		if err := rows.Scan(&id, &title, &content, &rank); err != nil {
			return nil, fmt.Errorf("scan fulltext row: %w", err)
		}
		doc := domain.ScoredDocument{
			ID:      id,
			Source:  domain.SourceFulltext,
			Content: content,
			Score:   rank,
			Rank:    len(out) + 1,
		}
		if title.Valid && title.String != "" {
			doc.Metadata = map[string]string{"title": title.String}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fulltext rows: %w", err)
	}
	return out, nil
}
