package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

const countsCacheTTL = time.Minute

// TransitionRepository persists per-tenant (intent -> next intent) counts.
// CountsFrom sits on the context hot path, so reads go through a short-lived
// in-process cache; Record invalidates the touched rows.
type TransitionRepository struct {
	db     *sql.DB
	counts *cache.Cache
}

func NewTransitionRepository(db *sql.DB) *TransitionRepository {
	return &TransitionRepository{
		db:     db,
		counts: cache.New(countsCacheTTL, 5*time.Minute),
	}
}

func (r *TransitionRepository) Record(ctx context.Context, tenantID string, transitions []domain.IntentTransition) error {
	if len(transitions) == 0 {
		return nil
	}

	grouped := make(map[domain.IntentTransition]int, len(transitions))
	order := make([]domain.IntentTransition, 0, len(transitions))
	for _, tr := range transitions {
		if _, seen := grouped[tr]; !seen {
			order = append(order, tr)
		}
		grouped[tr]++
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transitions tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, tr := range order {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO intent_transitions (tenant_id, from_intent, to_intent, cnt, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (tenant_id, from_intent, to_intent)
DO UPDATE SET cnt = intent_transitions.cnt + EXCLUDED.cnt, updated_at = EXCLUDED.updated_at
`, tenantID, string(tr.From), string(tr.To), grouped[tr], now); err != nil {
			return fmt.Errorf("upsert transition %s->%s: %w", tr.From, tr.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transitions tx: %w", err)
	}

	for _, tr := range order {
		r.counts.Delete(countsKey(tenantID, tr.From))
	}
	return nil
}

func (r *TransitionRepository) CountsFrom(ctx context.Context, tenantID string, from domain.IntentCategory) (map[domain.IntentCategory]int, error) {
	key := countsKey(tenantID, from)
	if cached, found := r.counts.Get(key); found {
		if counts, ok := cached.(map[domain.IntentCategory]int); ok {
			return copyCounts(counts), nil
		}
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT to_intent, cnt
FROM intent_transitions
WHERE tenant_id = $1 AND from_intent = $2
`, tenantID, string(from))
	if err != nil {
		return nil, fmt.Errorf("query transition counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.IntentCategory]int)
	for rows.Next() {
		var to string
		var cnt int
		if err := rows.Scan(&to, &cnt); err != nil {
			return nil, fmt.Errorf("scan transition count: %w", err)
		}
		counts[domain.IntentCategory(to)] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition counts: %w", err)
	}

	r.counts.Set(key, copyCounts(counts), cache.DefaultExpiration)
	return counts, nil
}

func countsKey(tenantID string, from domain.IntentCategory) string {
	return tenantID + "|" + string(from)
}

func copyCounts(counts map[domain.IntentCategory]int) map[domain.IntentCategory]int {
	out := make(map[domain.IntentCategory]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
