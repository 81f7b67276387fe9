package usecase

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const (
	defaultFallbackConfidence = 0.4
	keywordVoteWeight         = 1.0
	patternVoteWeight         = 2.0

	// Transition stats below this many observations fall back to the
	// funnel prior.
	minTransitionObservations = 3
	priorConfidence           = 0.25
)

// IntentTracker classifies turns into the closed intent taxonomy with a
// dual-method vote: lexicon keyword hits and regex pattern hits. Stateless
// over session data; history is owned by working memory and passed in.
type IntentTracker struct {
	lexicon     *Lexicon
	transitions ports.TransitionStore
	fallback    float64
}

func NewIntentTracker(lexicon *Lexicon, transitions ports.TransitionStore, fallbackConfidence float64) *IntentTracker {
	if fallbackConfidence <= 0 || fallbackConfidence >= 1 {
		fallbackConfidence = defaultFallbackConfidence
	}
	return &IntentTracker{lexicon: lexicon, transitions: transitions, fallback: fallbackConfidence}
}

// ClassifyTurn is the per-turn contract: raw dual-method classification
// smoothed against the session's recent intent history.
func (t *IntentTracker) ClassifyTurn(text string, history []domain.Intent) domain.Intent {
	return t.Resolve(t.Classify(text), history)
}

// Classify runs the dual-method vote over one turn of text. Both languages
// of a category vote for the same category. Confidence is the margin between
// the two strongest categories normalized by their combined vote.
func (t *IntentTracker) Classify(text string) domain.Intent {
	normalized := strings.ToLower(text)
	tokens := toTokenSet(text)

	votes := make(map[domain.IntentCategory]float64, len(t.lexicon.categories))
	for category, lex := range t.lexicon.categories {
		var vote float64
		for token := range lex.tokens {
			if _, ok := tokens[token]; ok {
				vote += keywordVoteWeight
			}
		}
		for _, phrase := range lex.phrases {
			if strings.Contains(normalized, phrase) {
				vote += keywordVoteWeight
			}
		}
		for _, pattern := range lex.patterns {
			if pattern.MatchString(text) {
				vote += patternVoteWeight
			}
		}
		if vote > 0 {
			votes[category] = vote
		}
	}

	top, second := topTwoVotes(votes)
	if top == "" {
		return domain.Intent{Category: domain.IntentUnknown, ObservedAt: time.Now().UTC()}
	}

	intent := domain.Intent{
		Category:   top,
		Confidence: (votes[top] - votes[second]) / (votes[top] + votes[second]),
		ObservedAt: time.Now().UTC(),
	}
	if second != "" {
		intent.Secondary = second
	}
	return intent
}

// Resolve smooths a noisy single-turn classification: below the confidence
// threshold the most frequent recent intent wins instead, with the raw
// category preserved as the runner-up.
func (t *IntentTracker) Resolve(raw domain.Intent, history []domain.Intent) domain.Intent {
	if raw.Confidence >= t.fallback && raw.Category != domain.IntentUnknown {
		return raw
	}
	frequent := mostFrequentIntent(history)
	if frequent == "" || frequent == raw.Category {
		return raw
	}
	resolved := raw
	resolved.Category = frequent
	if raw.Category != domain.IntentUnknown {
		resolved.Secondary = raw.Category
	}
	return resolved
}

// PredictNext estimates the likely next intent from the tenant's observed
// transition statistics, falling back to a fixed funnel prior when the data
// is too thin.
func (t *IntentTracker) PredictNext(ctx context.Context, tenantID string, history []domain.Intent) domain.Intent {
	last := lastKnownIntent(history)
	if last == "" {
		return domain.Intent{Category: domain.IntentGreeting, Confidence: priorConfidence, ObservedAt: time.Now().UTC()}
	}

	if t.transitions != nil {
		counts, err := t.transitions.CountsFrom(ctx, tenantID, last)
		if err == nil {
			total := 0
			for _, n := range counts {
				total += n
			}
			if total >= minTransitionObservations {
				best, bestCount := bestTransition(counts)
				if best != "" {
					return domain.Intent{
						Category:   best,
						Confidence: float64(bestCount) / float64(total),
						ObservedAt: time.Now().UTC(),
					}
				}
			}
		}
	}

	return domain.Intent{Category: funnelPrior(last), Confidence: priorConfidence, ObservedAt: time.Now().UTC()}
}

// topTwoVotes picks the two strongest categories deterministically: equal
// votes resolve in taxonomy order.
func topTwoVotes(votes map[domain.IntentCategory]float64) (domain.IntentCategory, domain.IntentCategory) {
	var top, second domain.IntentCategory
	for _, category := range domain.KnownIntents() {
		vote, ok := votes[category]
		if !ok {
			continue
		}
		switch {
		case top == "" || vote > votes[top]:
			second = top
			top = category
		case second == "" || vote > votes[second]:
			second = category
		}
	}
	return top, second
}

func mostFrequentIntent(history []domain.Intent) domain.IntentCategory {
	counts := make(map[domain.IntentCategory]int, len(history))
	lastIndex := make(map[domain.IntentCategory]int, len(history))
	for i, intent := range history {
		if intent.Category == domain.IntentUnknown || intent.Category == "" {
			continue
		}
		counts[intent.Category]++
		lastIndex[intent.Category] = i
	}

	var best domain.IntentCategory
	for category, count := range counts {
		if best == "" {
			best = category
			continue
		}
		if count > counts[best] {
			best = category
			continue
		}
		// Equal counts: prefer the intent seen most recently.
		if count == counts[best] && lastIndex[category] > lastIndex[best] {
			best = category
		}
	}
	return best
}

func lastKnownIntent(history []domain.Intent) domain.IntentCategory {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Category != domain.IntentUnknown && history[i].Category != "" {
			return history[i].Category
		}
	}
	return ""
}

func bestTransition(counts map[domain.IntentCategory]int) (domain.IntentCategory, int) {
	var best domain.IntentCategory
	bestCount := 0
	for _, category := range domain.KnownIntents() {
		if counts[category] > bestCount {
			best = category
			bestCount = counts[category]
		}
	}
	return best, bestCount
}

// funnelPrior is the default (intent -> likely next intent) map used until a
// tenant has accumulated real transition data.
func funnelPrior(from domain.IntentCategory) domain.IntentCategory {
	prior := map[domain.IntentCategory]domain.IntentCategory{
		domain.IntentGreeting:   domain.IntentInquiry,
		domain.IntentInquiry:    domain.IntentTechnical,
		domain.IntentTechnical:  domain.IntentPricing,
		domain.IntentPricing:    domain.IntentObjection,
		domain.IntentComparison: domain.IntentPricing,
		domain.IntentObjection:  domain.IntentCommitment,
		domain.IntentCommitment: domain.IntentClosing,
		domain.IntentSupport:    domain.IntentFeedback,
		domain.IntentFeedback:   domain.IntentClosing,
		domain.IntentClosing:    domain.IntentClosing,
	}
	if next, ok := prior[from]; ok {
		return next
	}
	return domain.IntentInquiry
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitWordsLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
