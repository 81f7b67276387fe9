package domain

type Source string

const (
	SourceVector   Source = "vector"
	SourceFulltext Source = "fulltext"
	SourceGraph    Source = "graph"
)

func KnownSources() []Source {
	return []Source{SourceVector, SourceFulltext, SourceGraph}
}

type SearchFilters struct {
	TenantID string   `json:"tenant_id"`
	BotID    string   `json:"bot_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ScoredDocument is one hit from a single retrieval source. Score is
// source-local and not comparable across sources; Rank starts at 1.
type ScoredDocument struct {
	ID       string            `json:"id"`
	Source   Source            `json:"source"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Rank     int               `json:"rank"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FusedResult is one deduplicated candidate after rank fusion.
type FusedResult struct {
	ID                  string            `json:"id"`
	Content             string            `json:"content"`
	FusedScore          float64           `json:"fused_score"`
	ContributingSources []Source          `json:"contributing_sources"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// FusedSet is the outcome of one fusion call. Degraded is set when fewer
// than all known sources contributed. RerankFallback is set by the retrieval
// pipeline when the scorer was unavailable and fused order was kept.
type FusedSet struct {
	Results        []FusedResult `json:"results"`
	Degraded       bool          `json:"degraded"`
	FailedSources  []Source      `json:"failed_sources,omitempty"`
	RerankFallback bool          `json:"rerank_fallback,omitempty"`
}

type Passage struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
	Score   float64  `json:"score"`
}
