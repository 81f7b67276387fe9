package domain

import "time"

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

type Turn struct {
	Role      TurnRole       `json:"role"`
	Text      string         `json:"text"`
	Intent    IntentCategory `json:"intent,omitempty"`
	Sentiment float64        `json:"sentiment"`
	CreatedAt time.Time      `json:"created_at"`
}

// WorkingMemory is the per-session ephemeral state. It is owned by exactly
// one session, expires via store TTL, and is never shared across sessions.
// Identity is a lookup reference to a durable profile, not ownership.
type WorkingMemory struct {
	SessionID     string            `json:"session_id"`
	TenantID      string            `json:"tenant_id"`
	BotID         string            `json:"bot_id"`
	Identity      Identity          `json:"identity,omitempty"`
	ProfileID     string            `json:"profile_id,omitempty"`
	Turns         []Turn            `json:"turns"`
	CurrentIntent Intent            `json:"current_intent"`
	IntentHistory []Intent          `json:"intent_history"`
	Stage         StageState        `json:"stage"`
	PendingFacts  map[string]string `json:"pending_facts,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastSeen      time.Time         `json:"last_seen"`
}
