package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

const profileColumns = `id, tenant_id, bot_id, email, phone, facts, session_summaries, total_sessions, total_messages, avg_sentiment, engagement_level, created_at, updated_at`

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *domain.UserProfile) error {
	factsJSON, summariesJSON, err := marshalProfileJSON(profile)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO profiles (
	id, tenant_id, bot_id, email, phone, facts, session_summaries, total_sessions, total_messages, avg_sentiment, engagement_level, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		profile.ID, profile.TenantID, profile.BotID, profile.Email, profile.Phone,
		factsJSON, summariesJSON,
		profile.Behavior.TotalSessions, profile.Behavior.TotalMessages, profile.Behavior.AvgSentiment,
		string(profile.Behavior.EngagementLevel), profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrProfileStoreUnavailable, "insert profile", err)
	}
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE id = $1
`, id)
	return scanProfileRow(row, "get profile")
}

func (r *ProfileRepository) FindByEmail(ctx context.Context, tenantID, botID, email string) (*domain.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE tenant_id = $1 AND bot_id = $2 AND email = $3
`, tenantID, botID, email)
	return scanProfileRow(row, "find profile by email")
}

func (r *ProfileRepository) FindByPhone(ctx context.Context, tenantID, botID, phone string) (*domain.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE tenant_id = $1 AND bot_id = $2 AND phone = $3
`, tenantID, botID, phone)
	return scanProfileRow(row, "find profile by phone")
}

func (r *ProfileRepository) Update(ctx context.Context, profile *domain.UserProfile) error {
	factsJSON, summariesJSON, err := marshalProfileJSON(profile)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE profiles
SET email = $2, phone = $3, facts = $4, session_summaries = $5,
	total_sessions = $6, total_messages = $7, avg_sentiment = $8,
	engagement_level = $9, updated_at = $10
WHERE id = $1
`,
		profile.ID, profile.Email, profile.Phone, factsJSON, summariesJSON,
		profile.Behavior.TotalSessions, profile.Behavior.TotalMessages, profile.Behavior.AvgSentiment,
		string(profile.Behavior.EngagementLevel), profile.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrProfileStoreUnavailable, "update profile", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrProfileStoreUnavailable, "update profile", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrProfileNotFound, "update profile", fmt.Errorf("profile %s", profile.ID))
	}
	return nil
}

func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return domain.WrapError(domain.ErrProfileStoreUnavailable, "delete profile", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrProfileStoreUnavailable, "delete profile", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrProfileNotFound, "delete profile", fmt.Errorf("profile %s", id))
	}
	return nil
}

func (r *ProfileRepository) Search(ctx context.Context, tenantID, botID, query string, limit int) ([]domain.UserProfile, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE tenant_id = $1 AND bot_id = $2
  AND (email ILIKE $3 OR phone LIKE $3 OR facts::text ILIKE $3)
ORDER BY updated_at DESC
LIMIT $4
`, tenantID, botID, pattern, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProfileStoreUnavailable, "search profiles", err)
	}
	defer rows.Close()

	var out []domain.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrProfileStoreUnavailable, "search profiles", err)
		}
		out = append(out, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrProfileStoreUnavailable, "search profiles", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfileRow(row *sql.Row, operation string) (*domain.UserProfile, error) {
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProfileNotFound, operation, err)
		}
		return nil, domain.WrapError(domain.ErrProfileStoreUnavailable, operation, err)
	}
	return profile, nil
}

func scanProfile(row rowScanner) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	var factsRaw, summariesRaw []byte
	var level string

	err := row.Scan(
		&profile.ID, &profile.TenantID, &profile.BotID, &profile.Email, &profile.Phone,
		&factsRaw, &summariesRaw,
		&profile.Behavior.TotalSessions, &profile.Behavior.TotalMessages, &profile.Behavior.AvgSentiment,
		&level, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(factsRaw, &profile.Facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	if err := json.Unmarshal(summariesRaw, &profile.SessionSummaries); err != nil {
		return nil, fmt.Errorf("unmarshal session summaries: %w", err)
	}
	profile.Behavior.EngagementLevel = domain.EngagementLevel(level)
	return &profile, nil
}

func marshalProfileJSON(profile *domain.UserProfile) (factsJSON, summariesJSON []byte, err error) {
	facts := profile.Facts
	if facts == nil {
		facts = map[string]domain.Fact{}
	}
	factsJSON, err = json.Marshal(facts)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal facts: %w", err)
	}

	summaries := profile.SessionSummaries
	if summaries == nil {
		summaries = []domain.SessionSummary{}
	}
	summariesJSON, err = json.Marshal(summaries)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal session summaries: %w", err)
	}
	return factsJSON, summariesJSON, nil
}
