package usecase

import (
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

// stageTargets maps every intent in the taxonomy to its funnel target. An
// empty target means the intent carries no funnel movement. Exhaustiveness
// over the taxonomy is asserted by tests.
var stageTargets = map[domain.IntentCategory]domain.Stage{
	domain.IntentGreeting:   domain.StageGreeting,
	domain.IntentInquiry:    domain.StageDiscovery,
	domain.IntentTechnical:  domain.StageSolution,
	domain.IntentPricing:    domain.StagePricing,
	domain.IntentComparison: domain.StageSolution,
	domain.IntentObjection:  domain.StageObjectionHandling,
	domain.IntentCommitment: domain.StageClosing,
	domain.IntentSupport:    "",
	domain.IntentFeedback:   "",
	domain.IntentClosing:    domain.StageClosing,
}

// StageDetector is the funnel state machine. The funnel only moves forward,
// except objection, which pulls the conversation to objection_handling from
// any position. Stateless; stage state lives in working memory.
type StageDetector struct {
	lexicon *Lexicon
}

func NewStageDetector(lexicon *Lexicon) *StageDetector {
	return &StageDetector{lexicon: lexicon}
}

// InitialStageState is the funnel entry point for a fresh session.
func InitialStageState(now time.Time) domain.StageState {
	return domain.StageState{Stage: domain.StageGreeting, EnteredAt: now}
}

// Advance applies one observed intent to the stage state. A non-advancing
// turn re-evaluates the stuck flag against the stage's time threshold; an
// advancing turn resets it.
func (d *StageDetector) Advance(state domain.StageState, intent domain.IntentCategory, now time.Time) domain.StageState {
	if state.Stage.Position() < 0 {
		state = InitialStageState(now)
	}

	target := stageTargets[intent]
	moved := false
	switch {
	case target == "":
		// Unrecognized or non-funnel intent: hold position.
	case intent == domain.IntentObjection:
		if state.Stage != domain.StageObjectionHandling {
			state.Stage = domain.StageObjectionHandling
			moved = true
		}
	case target.Position() > state.Stage.Position():
		state.Stage = target
		moved = true
	}

	if moved {
		state.EnteredAt = now
		state.Stuck = false
		return state
	}
	state.Stuck = d.isStuck(state, now)
	return state
}

// Guidance returns the prompt steering text for the current stage.
func (d *StageDetector) Guidance(stage domain.Stage) string {
	return d.lexicon.Guidance(stage)
}

func (d *StageDetector) isStuck(state domain.StageState, now time.Time) bool {
	threshold := d.lexicon.StuckAfter(state.Stage)
	if threshold <= 0 || state.EnteredAt.IsZero() {
		return false
	}
	return now.Sub(state.EnteredAt) >= threshold
}
