package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const (
	// EMA smoothing for sentiment: new = 0.8*old + 0.2*current. Resists
	// outlier swings from a single hostile or effusive message.
	sentimentKeep    = 0.8
	sentimentBlend   = 0.2
	summaryRingLimit = 20
	searchLimit      = 50
)

// ProfileService manages the durable cross-session user profiles. Fact
// merges are last-write-wins per key and idempotent; nothing is deleted
// implicitly.
type ProfileService struct {
	store ports.ProfileStore
}

func NewProfileService(store ports.ProfileStore) *ProfileService {
	return &ProfileService{store: store}
}

// FindOrCreate resolves an identity within the (tenant, bot) scope. Email
// match wins first, then phone. When both identifiers resolve to two
// different profiles the call fails with an identity conflict; reconciliation
// is a manual Merge, never silent.
func (s *ProfileService) FindOrCreate(ctx context.Context, tenantID, botID string, identity domain.Identity) (*domain.UserProfile, bool, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(botID) == "" {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "find or create profile", fmt.Errorf("tenant_id and bot_id are required"))
	}
	email, phone := normalizeIdentity(identity)
	if email == "" && phone == "" {
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "find or create profile", fmt.Errorf("identity requires email or phone"))
	}

	byEmail, byPhone, err := s.resolve(ctx, tenantID, botID, email, phone)
	if err != nil {
		return nil, false, err
	}

	switch {
	case byEmail != nil && byPhone != nil && byEmail.ID != byPhone.ID:
		return nil, false, domain.WrapError(domain.ErrIdentityConflict, "find or create profile",
			fmt.Errorf("email resolves to %s, phone resolves to %s", byEmail.ID, byPhone.ID))
	case byEmail != nil:
		return s.enrichIdentity(ctx, byEmail, email, phone)
	case byPhone != nil:
		return s.enrichIdentity(ctx, byPhone, email, phone)
	}

	now := time.Now().UTC()
	profile := &domain.UserProfile{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		BotID:     botID,
		Email:     email,
		Phone:     phone,
		Facts:     make(map[string]domain.Fact),
		Behavior:  domain.BehaviorStats{EngagementLevel: domain.EngagementNew},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, profile); err != nil {
		return nil, false, fmt.Errorf("create profile: %w", err)
	}
	return profile, true, nil
}

// MergeFacts applies last-write-wins fact updates. Re-applying the same fact
// map is a no-op: unchanged values keep their timestamps and the profile is
// not rewritten.
func (s *ProfileService) MergeFacts(ctx context.Context, profileID string, facts map[string]string) (*domain.UserProfile, error) {
	profile, err := s.store.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return profile, nil
	}

	if profile.Facts == nil {
		profile.Facts = make(map[string]domain.Fact, len(facts))
	}
	now := time.Now().UTC()
	changed := false
	for key, value := range facts {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if existing, ok := profile.Facts[key]; ok && existing.Value == value {
			continue
		}
		profile.Facts[key] = domain.Fact{Value: value, UpdatedAt: now}
		changed = true
	}
	if !changed {
		return profile, nil
	}

	profile.UpdatedAt = now
	if err := s.store.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile facts: %w", err)
	}
	return profile, nil
}

// AppendSessionSummary pushes one summary into the fixed-length ring buffer
// and counts the completed session.
func (s *ProfileService) AppendSessionSummary(ctx context.Context, profileID string, summary domain.SessionSummary) error {
	profile, err := s.store.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	profile.SessionSummaries = append(profile.SessionSummaries, summary)
	if len(profile.SessionSummaries) > summaryRingLimit {
		profile.SessionSummaries = profile.SessionSummaries[len(profile.SessionSummaries)-summaryRingLimit:]
	}
	profile.Behavior.TotalSessions++
	profile.Behavior.EngagementLevel = engagementFor(profile.Behavior.TotalSessions, profile.Behavior.TotalMessages)
	profile.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, profile); err != nil {
		return fmt.Errorf("append session summary: %w", err)
	}
	return nil
}

// RecordBehavior folds one session's sentiment and message count into the
// behavior aggregates.
func (s *ProfileService) RecordBehavior(ctx context.Context, profileID string, sentiment float64, messageCount int) error {
	profile, err := s.store.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	sentiment = clampSentiment(sentiment)
	if profile.Behavior.TotalMessages == 0 {
		profile.Behavior.AvgSentiment = sentiment
	} else {
		profile.Behavior.AvgSentiment = sentimentKeep*profile.Behavior.AvgSentiment + sentimentBlend*sentiment
	}
	if messageCount > 0 {
		profile.Behavior.TotalMessages += messageCount
	}
	profile.Behavior.EngagementLevel = engagementFor(profile.Behavior.TotalSessions, profile.Behavior.TotalMessages)
	profile.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, profile); err != nil {
		return fmt.Errorf("record behavior: %w", err)
	}
	return nil
}

func (s *ProfileService) Search(ctx context.Context, tenantID, botID, query string) ([]domain.UserProfile, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search profiles", fmt.Errorf("tenant_id is required"))
	}
	return s.store.Search(ctx, tenantID, botID, strings.TrimSpace(query), searchLimit)
}

// Merge folds the loser profile into the winner: facts unioned favoring the
// most recent value, summaries interleaved within the ring limit, behavior
// counters summed. The loser is removed. Manual reconciliation path for
// identity conflicts.
func (s *ProfileService) Merge(ctx context.Context, winnerID, loserID string) (*domain.UserProfile, error) {
	if winnerID == loserID {
		return nil, domain.WrapError(domain.ErrInvalidInput, "merge profiles", fmt.Errorf("cannot merge a profile into itself"))
	}
	winner, err := s.store.GetByID(ctx, winnerID)
	if err != nil {
		return nil, err
	}
	loser, err := s.store.GetByID(ctx, loserID)
	if err != nil {
		return nil, err
	}
	if winner.TenantID != loser.TenantID || winner.BotID != loser.BotID {
		return nil, domain.WrapError(domain.ErrInvalidInput, "merge profiles", fmt.Errorf("profiles belong to different scopes"))
	}

	if winner.Facts == nil {
		winner.Facts = make(map[string]domain.Fact, len(loser.Facts))
	}
	for key, fact := range loser.Facts {
		current, ok := winner.Facts[key]
		if !ok || fact.UpdatedAt.After(current.UpdatedAt) {
			winner.Facts[key] = fact
		}
	}

	winner.SessionSummaries = mergeSummaries(winner.SessionSummaries, loser.SessionSummaries)

	winnerMessages := winner.Behavior.TotalMessages
	loserMessages := loser.Behavior.TotalMessages
	if winnerMessages+loserMessages > 0 {
		winner.Behavior.AvgSentiment = (winner.Behavior.AvgSentiment*float64(winnerMessages) +
			loser.Behavior.AvgSentiment*float64(loserMessages)) / float64(winnerMessages+loserMessages)
	}
	winner.Behavior.TotalSessions += loser.Behavior.TotalSessions
	winner.Behavior.TotalMessages += loserMessages
	winner.Behavior.EngagementLevel = engagementFor(winner.Behavior.TotalSessions, winner.Behavior.TotalMessages)

	if winner.Email == "" {
		winner.Email = loser.Email
	}
	if winner.Phone == "" {
		winner.Phone = loser.Phone
	}
	winner.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, winner); err != nil {
		return nil, fmt.Errorf("merge profiles: %w", err)
	}
	if err := s.store.Delete(ctx, loserID); err != nil {
		return nil, fmt.Errorf("remove merged profile: %w", err)
	}
	return winner, nil
}

// Export returns the full profile for a resolved identity, for the
// data-portability hook.
func (s *ProfileService) Export(ctx context.Context, tenantID, botID string, identity domain.Identity) (*domain.ProfileExport, error) {
	profile, err := s.resolveOne(ctx, tenantID, botID, identity, "export profile")
	if err != nil {
		return nil, err
	}
	return &domain.ProfileExport{Profile: *profile, ExportedAt: time.Now().UTC()}, nil
}

// Erase removes every profile the identity resolves to. Unlike FindOrCreate
// this intentionally spans a conflicted pair: an erasure request covers all
// data tied to the identity.
func (s *ProfileService) Erase(ctx context.Context, tenantID, botID string, identity domain.Identity) error {
	email, phone := normalizeIdentity(identity)
	if email == "" && phone == "" {
		return domain.WrapError(domain.ErrInvalidInput, "erase profile", fmt.Errorf("identity requires email or phone"))
	}
	byEmail, byPhone, err := s.resolve(ctx, tenantID, botID, email, phone)
	if err != nil {
		return err
	}
	if byEmail == nil && byPhone == nil {
		return domain.WrapError(domain.ErrProfileNotFound, "erase profile", fmt.Errorf("no profile for identity"))
	}
	if byEmail != nil {
		if err := s.store.Delete(ctx, byEmail.ID); err != nil {
			return fmt.Errorf("erase profile: %w", err)
		}
	}
	if byPhone != nil && (byEmail == nil || byPhone.ID != byEmail.ID) {
		if err := s.store.Delete(ctx, byPhone.ID); err != nil {
			return fmt.Errorf("erase profile: %w", err)
		}
	}
	return nil
}

func (s *ProfileService) resolve(ctx context.Context, tenantID, botID, email, phone string) (*domain.UserProfile, *domain.UserProfile, error) {
	var byEmail, byPhone *domain.UserProfile
	if email != "" {
		p, err := s.store.FindByEmail(ctx, tenantID, botID, email)
		if err != nil && !domain.IsKind(err, domain.ErrProfileNotFound) {
			return nil, nil, err
		}
		byEmail = p
	}
	if phone != "" {
		p, err := s.store.FindByPhone(ctx, tenantID, botID, phone)
		if err != nil && !domain.IsKind(err, domain.ErrProfileNotFound) {
			return nil, nil, err
		}
		byPhone = p
	}
	return byEmail, byPhone, nil
}

func (s *ProfileService) resolveOne(ctx context.Context, tenantID, botID string, identity domain.Identity, operation string) (*domain.UserProfile, error) {
	email, phone := normalizeIdentity(identity)
	if email == "" && phone == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, operation, fmt.Errorf("identity requires email or phone"))
	}
	byEmail, byPhone, err := s.resolve(ctx, tenantID, botID, email, phone)
	if err != nil {
		return nil, err
	}
	switch {
	case byEmail != nil && byPhone != nil && byEmail.ID != byPhone.ID:
		return nil, domain.WrapError(domain.ErrIdentityConflict, operation,
			fmt.Errorf("email resolves to %s, phone resolves to %s", byEmail.ID, byPhone.ID))
	case byEmail != nil:
		return byEmail, nil
	case byPhone != nil:
		return byPhone, nil
	}
	return nil, domain.WrapError(domain.ErrProfileNotFound, operation, fmt.Errorf("no profile for identity"))
}

// enrichIdentity fills in a newly learned identifier on an existing profile.
func (s *ProfileService) enrichIdentity(ctx context.Context, profile *domain.UserProfile, email, phone string) (*domain.UserProfile, bool, error) {
	changed := false
	if profile.Email == "" && email != "" {
		profile.Email = email
		changed = true
	}
	if profile.Phone == "" && phone != "" {
		profile.Phone = phone
		changed = true
	}
	if changed {
		profile.UpdatedAt = time.Now().UTC()
		if err := s.store.Update(ctx, profile); err != nil {
			return nil, false, fmt.Errorf("update profile identity: %w", err)
		}
	}
	return profile, false, nil
}

func normalizeIdentity(identity domain.Identity) (string, string) {
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	phone := normalizePhone(identity.Phone)
	return email, phone
}

// normalizePhone keeps digits and a leading plus so formatting differences
// do not split identities.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// engagementFor derives the engagement level from fixed thresholds on the
// session and message counters.
func engagementFor(sessions, messages int) domain.EngagementLevel {
	switch {
	case sessions <= 1:
		return domain.EngagementNew
	case sessions >= 3 && messages < sessions*3:
		return domain.EngagementDisengaged
	case sessions >= 5 && messages >= 50:
		return domain.EngagementEngaged
	default:
		return domain.EngagementActive
	}
}

func mergeSummaries(a, b []domain.SessionSummary) []domain.SessionSummary {
	merged := make([]domain.SessionSummary, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	if len(merged) > summaryRingLimit {
		merged = merged[len(merged)-summaryRingLimit:]
	}
	return merged
}
