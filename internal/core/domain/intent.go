package domain

import "time"

type IntentCategory string

const (
	IntentGreeting   IntentCategory = "greeting"
	IntentInquiry    IntentCategory = "inquiry"
	IntentTechnical  IntentCategory = "technical"
	IntentPricing    IntentCategory = "pricing"
	IntentComparison IntentCategory = "comparison"
	IntentObjection  IntentCategory = "objection"
	IntentCommitment IntentCategory = "commitment"
	IntentSupport    IntentCategory = "support"
	IntentFeedback   IntentCategory = "feedback"
	IntentClosing    IntentCategory = "closing"

	// IntentUnknown is produced when neither lexicon nor patterns matched.
	IntentUnknown IntentCategory = "unknown"
)

func KnownIntents() []IntentCategory {
	return []IntentCategory{
		IntentGreeting,
		IntentInquiry,
		IntentTechnical,
		IntentPricing,
		IntentComparison,
		IntentObjection,
		IntentCommitment,
		IntentSupport,
		IntentFeedback,
		IntentClosing,
	}
}

// Intent is one classified turn. Confidence is the normalized vote margin
// in [0,1]; Secondary is the runner-up category when one scored.
type Intent struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"`
	Secondary  IntentCategory `json:"secondary,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// IntentTransition is one observed (intent -> next intent) pair, the unit of
// the per-tenant transition statistics behind PredictNext.
type IntentTransition struct {
	From IntentCategory `json:"from"`
	To   IntentCategory `json:"to"`
}
