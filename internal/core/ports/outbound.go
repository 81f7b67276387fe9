package ports

import (
	"context"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

// DocumentSearcher is one retrieval source. Implementations report a fixed
// Source discriminant and honor ctx cancellation on every call.
type DocumentSearcher interface {
	Source() domain.Source
	Search(ctx context.Context, query string, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error)
}

// Embedder builds the query vector for the vector source.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RelevanceScorer jointly scores (query, passage) pairs; one scalar per
// passage, same order as the input.
type RelevanceScorer interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
}

// SessionStore persists working memory under a sliding TTL.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*domain.WorkingMemory, error)
	Put(ctx context.Context, memory *domain.WorkingMemory) error
	Delete(ctx context.Context, sessionID string) error
}

// ProfileStore persists durable user profiles.
type ProfileStore interface {
	Create(ctx context.Context, profile *domain.UserProfile) error
	GetByID(ctx context.Context, id string) (*domain.UserProfile, error)
	FindByEmail(ctx context.Context, tenantID, botID, email string) (*domain.UserProfile, error)
	FindByPhone(ctx context.Context, tenantID, botID, phone string) (*domain.UserProfile, error)
	Update(ctx context.Context, profile *domain.UserProfile) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, tenantID, botID, query string, limit int) ([]domain.UserProfile, error)
}

// TransitionStore persists per-tenant intent transition counts.
type TransitionStore interface {
	Record(ctx context.Context, tenantID string, transitions []domain.IntentTransition) error
	CountsFrom(ctx context.Context, tenantID string, from domain.IntentCategory) (map[domain.IntentCategory]int, error)
}

// ProfileEventQueue publishes/consumes asynchronous profile mutations.
type ProfileEventQueue interface {
	PublishProfileEvent(ctx context.Context, event domain.ProfileEvent) error
	SubscribeProfileEvents(ctx context.Context, handler func(context.Context, domain.ProfileEvent) error) error
}
