package usecase

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

const defaultTokenBudget = 1800

// TokenCounter counts text tokens with the cl100k_base encoding. When the
// encoding cannot be initialized (offline environment) it falls back to a
// bytes/4 estimate.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

func NewTokenCounter() *TokenCounter {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoder: encoder}
}

func (tc *TokenCounter) Count(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// ContextRenderer renders the context prompt within a fixed token budget.
// Trimming removes whole items from the lowest-priority tier first: session
// summaries, then profile facts, then stage guidance, then passages from the
// tail of the ranking.
type ContextRenderer struct {
	counter *TokenCounter
	budget  int
}

func NewContextRenderer(counter *TokenCounter, budget int) *ContextRenderer {
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	return &ContextRenderer{counter: counter, budget: budget}
}

// Render fills payload.Prompt and payload.TokenCount, dropping items until
// the budget holds, and mirrors the surviving items back onto the payload.
// Returns true when anything was trimmed.
func (r *ContextRenderer) Render(payload *domain.ContextPayload) bool {
	trimmed := false
	for {
		prompt := renderPrompt(payload)
		tokens := r.counter.Count(prompt)
		if tokens <= r.budget {
			payload.Prompt = prompt
			payload.TokenCount = tokens
			return trimmed
		}
		if !trimOneItem(payload) {
			// Nothing left to drop; emit the irreducible prompt as is.
			payload.Prompt = prompt
			payload.TokenCount = tokens
			return true
		}
		trimmed = true
	}
}

// trimOneItem removes a single item from the lowest-priority non-empty tier.
func trimOneItem(payload *domain.ContextPayload) bool {
	if n := len(payload.SessionSummaries); n > 0 {
		payload.SessionSummaries = payload.SessionSummaries[:n-1]
		return true
	}
	if n := len(payload.ProfileFacts); n > 0 {
		payload.ProfileFacts = payload.ProfileFacts[:n-1]
		return true
	}
	if payload.Guidance != "" {
		payload.Guidance = ""
		return true
	}
	if n := len(payload.Passages); n > 0 {
		payload.Passages = payload.Passages[:n-1]
		return true
	}
	return false
}

func renderPrompt(payload *domain.ContextPayload) string {
	var b strings.Builder

	if len(payload.Passages) > 0 {
		b.WriteString("Retrieved knowledge:\n")
		for i, passage := range payload.Passages {
			sources := make([]string, 0, len(passage.Sources))
			for _, source := range passage.Sources {
				sources = append(sources, string(source))
			}
			fmt.Fprintf(&b, "[%d] sources=%s score=%.4f\n%s\n\n",
				i+1, strings.Join(sources, ","), passage.Score, passage.Content)
		}
	}

	b.WriteString("Conversation state:\n")
	fmt.Fprintf(&b, "intent=%s confidence=%.2f\n", payload.Intent.Category, payload.Intent.Confidence)
	if payload.PredictedNext != "" {
		fmt.Fprintf(&b, "likely_next=%s\n", payload.PredictedNext)
	}
	fmt.Fprintf(&b, "stage=%s stuck=%t\n", payload.Stage.Stage, payload.Stage.Stuck)
	if payload.Guidance != "" {
		fmt.Fprintf(&b, "guidance: %s\n", payload.Guidance)
	}

	if len(payload.ProfileFacts) > 0 {
		b.WriteString("\nKnown user facts:\n")
		for _, fact := range payload.ProfileFacts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}

	if len(payload.SessionSummaries) > 0 {
		b.WriteString("\nPrevious sessions:\n")
		for _, summary := range payload.SessionSummaries {
			fmt.Fprintf(&b, "- %s\n", summary)
		}
	}

	return b.String()
}
