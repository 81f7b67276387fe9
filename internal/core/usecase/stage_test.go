package usecase

import (
	"testing"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func TestStageAdvancesForwardThroughFunnel(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := InitialStageState(now)

	state = detector.Advance(state, domain.IntentInquiry, now.Add(time.Minute))
	if state.Stage != domain.StageDiscovery {
		t.Fatalf("expected discovery after inquiry, got %s", state.Stage)
	}
	state = detector.Advance(state, domain.IntentTechnical, now.Add(2*time.Minute))
	if state.Stage != domain.StageSolution {
		t.Fatalf("expected solution after technical, got %s", state.Stage)
	}
	state = detector.Advance(state, domain.IntentPricing, now.Add(3*time.Minute))
	if state.Stage != domain.StagePricing {
		t.Fatalf("expected pricing after pricing intent, got %s", state.Stage)
	}
	state = detector.Advance(state, domain.IntentCommitment, now.Add(4*time.Minute))
	if state.Stage != domain.StageClosing {
		t.Fatalf("expected closing after commitment, got %s", state.Stage)
	}
}

func TestStageNeverMovesBackward(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := domain.StageState{Stage: domain.StagePricing, EnteredAt: now}

	state = detector.Advance(state, domain.IntentGreeting, now.Add(time.Minute))
	if state.Stage != domain.StagePricing {
		t.Fatalf("expected pricing held on greeting intent, got %s", state.Stage)
	}
	state = detector.Advance(state, domain.IntentInquiry, now.Add(2*time.Minute))
	if state.Stage != domain.StagePricing {
		t.Fatalf("expected pricing held on inquiry intent, got %s", state.Stage)
	}
}

func TestObjectionMovesBackToObjectionHandling(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := domain.StageState{Stage: domain.StageClosing, EnteredAt: now}

	state = detector.Advance(state, domain.IntentObjection, now.Add(time.Minute))
	if state.Stage != domain.StageObjectionHandling {
		t.Fatalf("expected objection_handling, got %s", state.Stage)
	}
	if !state.EnteredAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected entry timestamp reset on the move")
	}

	// Recovering from the objection still moves forward.
	state = detector.Advance(state, domain.IntentCommitment, now.Add(2*time.Minute))
	if state.Stage != domain.StageClosing {
		t.Fatalf("expected closing after commitment, got %s", state.Stage)
	}
}

func TestRepeatedObjectionHoldsStage(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := domain.StageState{Stage: domain.StageObjectionHandling, EnteredAt: now}

	state = detector.Advance(state, domain.IntentObjection, now.Add(time.Minute))
	if state.Stage != domain.StageObjectionHandling {
		t.Fatalf("expected stage held, got %s", state.Stage)
	}
	if !state.EnteredAt.Equal(now) {
		t.Fatalf("expected entry timestamp preserved on a held stage")
	}
}

func TestNonFunnelIntentsHoldStage(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := domain.StageState{Stage: domain.StageDiscovery, EnteredAt: now}

	for _, intent := range []domain.IntentCategory{domain.IntentSupport, domain.IntentFeedback, domain.IntentUnknown} {
		next := detector.Advance(state, intent, now.Add(time.Minute))
		if next.Stage != domain.StageDiscovery {
			t.Fatalf("expected %s to hold the stage, got %s", intent, next.Stage)
		}
	}
}

func TestStageTargetsCoverTaxonomy(t *testing.T) {
	for _, category := range domain.KnownIntents() {
		if _, ok := stageTargets[category]; !ok {
			t.Errorf("intent %s has no stage mapping", category)
		}
	}
}

func TestStuckFlagAfterStageThreshold(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := InitialStageState(now)

	// Greeting allows 5 minutes; a held turn before that is not stuck.
	state = detector.Advance(state, domain.IntentGreeting, now.Add(2*time.Minute))
	if state.Stuck {
		t.Fatalf("expected not stuck inside the greeting grace period")
	}

	state = detector.Advance(state, domain.IntentGreeting, now.Add(6*time.Minute))
	if !state.Stuck {
		t.Fatalf("expected stuck after the greeting threshold")
	}

	// Any forward move clears the flag.
	state = detector.Advance(state, domain.IntentInquiry, now.Add(7*time.Minute))
	if state.Stuck {
		t.Fatalf("expected stuck cleared after advancing")
	}
	if state.Stage != domain.StageDiscovery {
		t.Fatalf("expected discovery, got %s", state.Stage)
	}
}

func TestPricingTurnAdvancesAndStuckNeedsNoProgress(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()
	state := domain.StageState{Stage: domain.StageSolution, EnteredAt: now}

	// First pricing question advances immediately; no stuck flag.
	state = detector.Advance(state, domain.IntentPricing, now.Add(time.Minute))
	if state.Stage != domain.StagePricing {
		t.Fatalf("expected pricing stage, got %s", state.Stage)
	}
	if state.Stuck {
		t.Fatalf("expected fresh stage not stuck")
	}

	// Lingering in pricing under the 8 minute threshold stays clean.
	state = detector.Advance(state, domain.IntentPricing, now.Add(3*time.Minute))
	if state.Stuck {
		t.Fatalf("expected not stuck inside the pricing threshold")
	}

	// Past the threshold with no progress the informational flag raises.
	state = detector.Advance(state, domain.IntentPricing, now.Add(10*time.Minute))
	if !state.Stuck {
		t.Fatalf("expected stuck after lingering in pricing")
	}
}

func TestAdvanceReinitializesUnknownStage(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	now := time.Now().UTC()

	state := detector.Advance(domain.StageState{Stage: "bogus"}, domain.IntentGreeting, now)
	if state.Stage != domain.StageGreeting {
		t.Fatalf("expected reset to greeting, got %s", state.Stage)
	}
}

func TestGuidancePresentForEveryStage(t *testing.T) {
	detector := NewStageDetector(testLexicon(t))
	for _, stage := range domain.FunnelOrder() {
		if detector.Guidance(stage) == "" {
			t.Errorf("stage %s has no guidance", stage)
		}
	}
}
