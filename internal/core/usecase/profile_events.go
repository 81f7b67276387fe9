package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const summaryIntentCount = 3

// ProfileEventService applies queued profile events on the worker side.
// Updates land as the chat flows; session-closed events fold the whole
// session into long-term profile state.
type ProfileEventService struct {
	profiles    ports.ProfileDirectory
	transitions ports.TransitionStore
}

func NewProfileEventService(profiles ports.ProfileDirectory, transitions ports.TransitionStore) *ProfileEventService {
	return &ProfileEventService{profiles: profiles, transitions: transitions}
}

func (s *ProfileEventService) Apply(ctx context.Context, event domain.ProfileEvent) error {
	switch event.Kind {
	case domain.ProfileEventUpdate:
		return s.applyUpdate(ctx, event)
	case domain.ProfileEventSessionClosed:
		return s.applySessionClosed(ctx, event)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "apply profile event", fmt.Errorf("unknown kind %q", event.Kind))
	}
}

func (s *ProfileEventService) applyUpdate(ctx context.Context, event domain.ProfileEvent) error {
	if event.Identity.Empty() {
		return nil
	}
	profile, _, err := s.profiles.FindOrCreate(ctx, event.TenantID, event.BotID, event.Identity)
	if err != nil {
		return err
	}
	if len(event.Facts) > 0 {
		if _, err := s.profiles.MergeFacts(ctx, profile.ID, event.Facts); err != nil {
			return err
		}
	}
	return s.profiles.RecordBehavior(ctx, profile.ID, event.Sentiment, event.MessageCount)
}

func (s *ProfileEventService) applySessionClosed(ctx context.Context, event domain.ProfileEvent) error {
	// Transition stats are tenant-scoped, so they are recorded even for
	// sessions that never produced an identity.
	if len(event.Transitions) > 0 {
		if err := s.transitions.Record(ctx, event.TenantID, event.Transitions); err != nil {
			return err
		}
	}
	if event.Identity.Empty() {
		return nil
	}

	profile, _, err := s.profiles.FindOrCreate(ctx, event.TenantID, event.BotID, event.Identity)
	if err != nil {
		return err
	}
	if len(event.Facts) > 0 {
		if _, err := s.profiles.MergeFacts(ctx, profile.ID, event.Facts); err != nil {
			return err
		}
	}
	return s.profiles.AppendSessionSummary(ctx, profile.ID, domain.SessionSummary{
		SessionID: event.SessionID,
		Summary:   buildSessionSummary(event),
		CreatedAt: event.OccurredAt,
	})
}

// buildSessionSummary renders a short extractive recap of a closed session.
func buildSessionSummary(event domain.ProfileEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reached stage %s over %d messages.", event.StageReached, event.MessageCount)
	if tops := topIntents(event.IntentCounts, summaryIntentCount); len(tops) > 0 {
		fmt.Fprintf(&b, " Talked about: %s.", strings.Join(tops, ", "))
	}
	if len(event.Facts) > 0 {
		keys := make([]string, 0, len(event.Facts))
		for key := range event.Facts {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, " Captured: %s.", strings.Join(keys, ", "))
	}
	return b.String()
}

func topIntents(counts map[domain.IntentCategory]int, limit int) []string {
	if len(counts) == 0 {
		return nil
	}
	order := make(map[domain.IntentCategory]int, len(domain.KnownIntents()))
	for i, category := range domain.KnownIntents() {
		order[category] = i
	}
	categories := make([]domain.IntentCategory, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return order[categories[i]] < order[categories[j]]
	})
	if len(categories) > limit {
		categories = categories[:limit]
	}
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, string(category))
	}
	return names
}
