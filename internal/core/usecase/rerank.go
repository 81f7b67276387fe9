package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const (
	defaultRerankTopN    = 8
	defaultRerankTimeout = 250 * time.Millisecond
)

// Reranker reorders fused candidates by a joint (query, passage) relevance
// score from an external cross-encoder. The scorer is a black box returning
// one scalar per passage. Stateless, safe for concurrent use.
type Reranker struct {
	scorer  ports.RelevanceScorer
	topN    int
	timeout time.Duration
}

func NewReranker(scorer ports.RelevanceScorer, topN int, timeout time.Duration) *Reranker {
	if topN <= 0 {
		topN = defaultRerankTopN
	}
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}
	return &Reranker{scorer: scorer, topN: topN, timeout: timeout}
}

// Rerank scores the head of the candidate list against the query and
// reorders it by the new score, then truncates to kOut. A scorer failure
// keeps the fused order instead; the returned flag reports that fallback.
// Reranking never fails the retrieval call.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.FusedResult, kOut int) ([]domain.FusedResult, bool) {
	if kOut <= 0 || kOut > len(candidates) {
		kOut = len(candidates)
	}
	if len(candidates) == 0 {
		return candidates, false
	}

	headN := r.topN
	if headN > len(candidates) {
		headN = len(candidates)
	}
	if r.scorer == nil {
		return trimFused(candidates, kOut), true
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	passages := make([]string, headN)
	for i := 0; i < headN; i++ {
		passages[i] = candidates[i].Content
	}
	scores, err := r.scorer.ScorePairs(scoreCtx, query, passages)
	if err != nil || len(scores) != headN {
		return trimFused(candidates, kOut), true
	}

	type scoredCandidate struct {
		result domain.FusedResult
		score  float64
	}
	head := make([]scoredCandidate, headN)
	for i := 0; i < headN; i++ {
		head[i] = scoredCandidate{result: candidates[i], score: scores[i]}
	}
	// Stable sort keeps the original fused rank as the tie break.
	sort.SliceStable(head, func(i, j int) bool {
		return head[i].score > head[j].score
	})

	out := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range head {
		out = append(out, c.result)
	}
	out = append(out, candidates[headN:]...)
	return trimFused(out, kOut), false
}
