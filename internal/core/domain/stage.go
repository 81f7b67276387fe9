package domain

import "time"

type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageDiscovery         Stage = "discovery"
	StageSolution          Stage = "solution"
	StagePricing           Stage = "pricing"
	StageObjectionHandling Stage = "objection_handling"
	StageClosing           Stage = "closing"
)

// FunnelOrder lists the stages in forward funnel order.
func FunnelOrder() []Stage {
	return []Stage{
		StageGreeting,
		StageDiscovery,
		StageSolution,
		StagePricing,
		StageObjectionHandling,
		StageClosing,
	}
}

// Position returns the stage's index in funnel order, or -1 when unknown.
func (s Stage) Position() int {
	for i, stage := range FunnelOrder() {
		if stage == s {
			return i
		}
	}
	return -1
}

type StageState struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"entered_at"`
	Stuck     bool      `json:"stuck"`
}
