package domain

import (
	"strings"
	"time"
)

// Identity resolves a session to a durable profile. Either field alone is
// sufficient; both may be present.
type Identity struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (i Identity) Empty() bool {
	return strings.TrimSpace(i.Email) == "" && strings.TrimSpace(i.Phone) == ""
}

type EngagementLevel string

const (
	EngagementNew        EngagementLevel = "new"
	EngagementActive     EngagementLevel = "active"
	EngagementEngaged    EngagementLevel = "engaged"
	EngagementDisengaged EngagementLevel = "disengaged"
)

type BehaviorStats struct {
	TotalSessions   int             `json:"total_sessions"`
	TotalMessages   int             `json:"total_messages"`
	AvgSentiment    float64         `json:"avg_sentiment"`
	EngagementLevel EngagementLevel `json:"engagement_level"`
}

// Fact keeps the update timestamp so merges can favor the most recent value.
type Fact struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile is the durable cross-session aggregate, keyed by resolved
// identity within a (tenant_id, bot_id) scope.
type UserProfile struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	BotID            string           `json:"bot_id"`
	Email            string           `json:"email,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Facts            map[string]Fact  `json:"facts"`
	SessionSummaries []SessionSummary `json:"session_summaries"`
	Behavior         BehaviorStats    `json:"behavior"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type ProfileExport struct {
	Profile    UserProfile `json:"profile"`
	ExportedAt time.Time   `json:"exported_at"`
}
