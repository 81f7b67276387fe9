package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func TestApplyUpdateCreatesProfileAndRecordsBehavior(t *testing.T) {
	directory := &directoryFake{}
	transitions := &transitionStoreFake{}
	service := NewProfileEventService(directory, transitions)

	err := service.Apply(context.Background(), domain.ProfileEvent{
		Kind:         domain.ProfileEventUpdate,
		TenantID:     "t-1",
		BotID:        "b-1",
		SessionID:    "s-1",
		Identity:     domain.Identity{Email: "bob@example.com"},
		Facts:        map[string]string{"city": "Austin"},
		Sentiment:    0.4,
		MessageCount: 1,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if directory.findCalls != 1 {
		t.Fatalf("expected one profile resolution, got %d", directory.findCalls)
	}
	if len(directory.merged) != 1 || directory.merged[0]["city"] != "Austin" {
		t.Fatalf("expected facts merged, got %+v", directory.merged)
	}
	if len(directory.behaviors) != 1 || directory.behaviors[0].sentiment != 0.4 || directory.behaviors[0].messages != 1 {
		t.Fatalf("expected behavior recorded, got %+v", directory.behaviors)
	}
}

func TestApplyUpdateWithoutIdentityIsNoop(t *testing.T) {
	directory := &directoryFake{}
	service := NewProfileEventService(directory, &transitionStoreFake{})

	err := service.Apply(context.Background(), domain.ProfileEvent{
		Kind:      domain.ProfileEventUpdate,
		TenantID:  "t-1",
		BotID:     "b-1",
		SessionID: "s-1",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if directory.findCalls != 0 || len(directory.behaviors) != 0 {
		t.Fatalf("expected no profile work for anonymous events")
	}
}

func TestApplySessionClosedRecordsTransitionsAndSummary(t *testing.T) {
	directory := &directoryFake{}
	transitions := &transitionStoreFake{}
	service := NewProfileEventService(directory, transitions)

	err := service.Apply(context.Background(), domain.ProfileEvent{
		Kind:         domain.ProfileEventSessionClosed,
		TenantID:     "t-1",
		BotID:        "b-1",
		SessionID:    "s-1",
		Identity:     domain.Identity{Email: "bob@example.com"},
		Facts:        map[string]string{"email": "bob@example.com"},
		MessageCount: 7,
		StageReached: domain.StagePricing,
		IntentCounts: map[domain.IntentCategory]int{
			domain.IntentPricing:   3,
			domain.IntentTechnical: 1,
		},
		Transitions: []domain.IntentTransition{
			{From: domain.IntentInquiry, To: domain.IntentTechnical},
			{From: domain.IntentTechnical, To: domain.IntentPricing},
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(transitions.recorded) != 2 {
		t.Fatalf("expected transitions recorded, got %d", len(transitions.recorded))
	}
	if len(directory.summaries) != 1 {
		t.Fatalf("expected one summary appended, got %d", len(directory.summaries))
	}
	summary := directory.summaries[0]
	if summary.SessionID != "s-1" {
		t.Fatalf("expected summary tied to the session, got %s", summary.SessionID)
	}
	if !strings.Contains(summary.Summary, "pricing") || !strings.Contains(summary.Summary, "7 messages") {
		t.Fatalf("unexpected summary text: %q", summary.Summary)
	}
}

func TestApplySessionClosedAnonymousStillRecordsTransitions(t *testing.T) {
	directory := &directoryFake{}
	transitions := &transitionStoreFake{}
	service := NewProfileEventService(directory, transitions)

	err := service.Apply(context.Background(), domain.ProfileEvent{
		Kind:      domain.ProfileEventSessionClosed,
		TenantID:  "t-1",
		BotID:     "b-1",
		SessionID: "s-1",
		Transitions: []domain.IntentTransition{
			{From: domain.IntentGreeting, To: domain.IntentInquiry},
		},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(transitions.recorded) != 1 {
		t.Fatalf("expected transitions recorded for anonymous session, got %d", len(transitions.recorded))
	}
	if directory.findCalls != 0 || len(directory.summaries) != 0 {
		t.Fatalf("expected no profile writes for anonymous session")
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	service := NewProfileEventService(&directoryFake{}, &transitionStoreFake{})

	err := service.Apply(context.Background(), domain.ProfileEvent{Kind: "mystery"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestBuildSessionSummaryOrdersIntentsByFrequency(t *testing.T) {
	text := buildSessionSummary(domain.ProfileEvent{
		MessageCount: 12,
		StageReached: domain.StageClosing,
		IntentCounts: map[domain.IntentCategory]int{
			domain.IntentTechnical: 2,
			domain.IntentPricing:   5,
			domain.IntentGreeting:  1,
			domain.IntentInquiry:   2,
		},
		Facts: map[string]string{"email": "x", "phone": "y"},
	})
	if !strings.Contains(text, "Reached stage closing over 12 messages.") {
		t.Fatalf("unexpected summary: %q", text)
	}
	if !strings.Contains(text, "Talked about: pricing, inquiry, technical.") {
		t.Fatalf("expected frequency order with taxonomy tie-break, got %q", text)
	}
	if !strings.Contains(text, "Captured: email, phone.") {
		t.Fatalf("expected sorted fact keys, got %q", text)
	}
}
