package domain

import "time"

type ProfileEventKind string

const (
	ProfileEventUpdate        ProfileEventKind = "profile.update"
	ProfileEventSessionClosed ProfileEventKind = "session.closed"
)

// ProfileEvent is the asynchronous profile mutation unit. It carries the
// full payload so the worker never depends on the session still being alive.
type ProfileEvent struct {
	ID           string                 `json:"id"`
	Kind         ProfileEventKind       `json:"kind"`
	TenantID     string                 `json:"tenant_id"`
	BotID        string                 `json:"bot_id"`
	SessionID    string                 `json:"session_id"`
	Identity     Identity               `json:"identity,omitempty"`
	Facts        map[string]string      `json:"facts,omitempty"`
	Sentiment    float64                `json:"sentiment"`
	MessageCount int                    `json:"message_count"`
	StageReached Stage                  `json:"stage_reached,omitempty"`
	IntentCounts map[IntentCategory]int `json:"intent_counts,omitempty"`
	Transitions  []IntentTransition     `json:"transitions,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}
