package domain

import "time"

// ContextRequest is one inbound chat message to build context for.
type ContextRequest struct {
	SessionID string   `json:"session_id"`
	TenantID  string   `json:"tenant_id"`
	BotID     string   `json:"bot_id"`
	Identity  Identity `json:"identity,omitempty"`
	Message   string   `json:"message"`
}

// ContextFlags records how the build degraded, if at all. All false means a
// full-quality payload.
type ContextFlags struct {
	DegradedFusion   bool `json:"degraded_fusion,omitempty"`
	DegradedContext  bool `json:"degraded_context,omitempty"`
	AnonymousProfile bool `json:"anonymous_profile,omitempty"`
	RerankFallback   bool `json:"rerank_fallback,omitempty"`
	BudgetTrimmed    bool `json:"budget_trimmed,omitempty"`
	FromCache        bool `json:"from_cache,omitempty"`
}

// ContextPayload is the token-bounded block handed to the LLM caller.
// Prompt is the rendered form; the structured fields mirror what survived
// budget trimming.
type ContextPayload struct {
	SessionID        string         `json:"session_id"`
	TenantID         string         `json:"tenant_id"`
	BotID            string         `json:"bot_id"`
	Passages         []Passage      `json:"passages,omitempty"`
	Intent           Intent         `json:"intent"`
	PredictedNext    IntentCategory `json:"predicted_next,omitempty"`
	Stage            StageState     `json:"stage"`
	Guidance         string         `json:"guidance,omitempty"`
	ProfileFacts     []string       `json:"profile_facts,omitempty"`
	SessionSummaries []string       `json:"session_summaries,omitempty"`
	Prompt           string         `json:"prompt"`
	TokenCount       int            `json:"token_count"`
	Flags            ContextFlags   `json:"flags"`
	FallbackReasons  []string       `json:"fallback_reasons,omitempty"`
	BuiltAt          time.Time      `json:"built_at"`
}
