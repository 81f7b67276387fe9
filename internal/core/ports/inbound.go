package ports

import (
	"context"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

// ContextBuilder is the inbound contract for per-message context assembly.
type ContextBuilder interface {
	BuildContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextPayload, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// RetrievalService is the inbound contract for direct fused retrieval,
// used by the relevance-tuning surface.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, filters domain.SearchFilters, k int) (*domain.FusedSet, error)
}

// ProfileDirectory is the inbound contract for profile administration and
// the compliance hooks.
type ProfileDirectory interface {
	FindOrCreate(ctx context.Context, tenantID, botID string, identity domain.Identity) (*domain.UserProfile, bool, error)
	MergeFacts(ctx context.Context, profileID string, facts map[string]string) (*domain.UserProfile, error)
	AppendSessionSummary(ctx context.Context, profileID string, summary domain.SessionSummary) error
	RecordBehavior(ctx context.Context, profileID string, sentiment float64, messageCount int) error
	Search(ctx context.Context, tenantID, botID, query string) ([]domain.UserProfile, error)
	Merge(ctx context.Context, winnerID, loserID string) (*domain.UserProfile, error)
	Export(ctx context.Context, tenantID, botID string, identity domain.Identity) (*domain.ProfileExport, error)
	Erase(ctx context.Context, tenantID, botID string, identity domain.Identity) error
}

// ProfileEventApplier is the inbound contract for the asynchronous worker.
type ProfileEventApplier interface {
	Apply(ctx context.Context, event domain.ProfileEvent) error
}
