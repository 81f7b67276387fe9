package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const (
	defaultRRFK           = 60
	defaultKPerSource     = 20
	defaultKFused         = 30
	defaultAdapterTimeout = 300 * time.Millisecond
)

// Fusion fans one query out to every configured retrieval source and merges
// the ranked lists with reciprocal rank fusion. Stateless, safe for
// concurrent use.
type Fusion struct {
	searchers      []ports.DocumentSearcher
	rrfK           int
	kPerSource     int
	adapterTimeout time.Duration
}

func NewFusion(searchers []ports.DocumentSearcher, rrfK, kPerSource int, adapterTimeout time.Duration) *Fusion {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if kPerSource <= 0 {
		kPerSource = defaultKPerSource
	}
	if adapterTimeout <= 0 {
		adapterTimeout = defaultAdapterTimeout
	}
	return &Fusion{
		searchers:      searchers,
		rrfK:           rrfK,
		kPerSource:     kPerSource,
		adapterTimeout: adapterTimeout,
	}
}

type sourceOutcome struct {
	source domain.Source
	docs   []domain.ScoredDocument
	err    error
}

// Fuse queries all sources concurrently and returns the deduplicated fused
// candidate list, truncated to kFused. A slow or failing source is excluded
// from fusion rather than failing the call; the call errors only when every
// source failed.
func (f *Fusion) Fuse(ctx context.Context, query string, filters domain.SearchFilters, kFused int) (*domain.FusedSet, error) {
	if kFused <= 0 {
		kFused = defaultKFused
	}
	if len(f.searchers) == 0 {
		return nil, domain.WrapError(domain.ErrAllAdaptersFailed, "fuse", errors.New("no retrieval sources configured"))
	}

	outcomes := make([]sourceOutcome, len(f.searchers))
	var wg sync.WaitGroup
	wg.Add(len(f.searchers))
	for i, searcher := range f.searchers {
		go func() {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, f.adapterTimeout)
			defer cancel()

			docs, err := searcher.Search(searchCtx, query, filters, f.kPerSource)
			outcomes[i] = sourceOutcome{
				source: searcher.Source(),
				docs:   docs,
				err:    classifySearchError(searcher.Source(), err),
			}
		}()
	}
	wg.Wait()

	set := &domain.FusedSet{}
	var failures []error
	contributed := 0
	acc := make(map[string]*fusedCandidate)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failures = append(failures, outcome.err)
			set.FailedSources = append(set.FailedSources, outcome.source)
			continue
		}
		contributed++
		accumulateRRF(acc, outcome.source, outcome.docs, f.rrfK)
	}

	if contributed == 0 {
		return nil, domain.WrapError(domain.ErrAllAdaptersFailed, "fuse", errors.Join(failures...))
	}
	set.Degraded = contributed < len(f.searchers)
	set.Results = trimFused(rankFused(acc), kFused)
	return set, nil
}

type fusedCandidate struct {
	result domain.FusedResult
	seen   map[domain.Source]bool
}

// accumulateRRF folds one source's ranked list into the accumulator:
// score += 1/(k + rank) with rank starting at 1. A document listed twice by
// the same source only counts its best rank.
func accumulateRRF(acc map[string]*fusedCandidate, source domain.Source, docs []domain.ScoredDocument, rrfK int) {
	for i, doc := range docs {
		candidate := acc[doc.ID]
		if candidate == nil {
			candidate = &fusedCandidate{
				result: domain.FusedResult{ID: doc.ID},
				seen:   make(map[domain.Source]bool, 3),
			}
			acc[doc.ID] = candidate
		}
		if candidate.seen[source] {
			continue
		}
		candidate.seen[source] = true
		candidate.result.ContributingSources = append(candidate.result.ContributingSources, source)
		candidate.result.FusedScore += 1.0 / float64(rrfK+i+1)
		candidate.result = preferRicherResult(candidate.result, doc)
	}
}

func rankFused(acc map[string]*fusedCandidate) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(acc))
	for _, candidate := range acc {
		sortSources(candidate.result.ContributingSources)
		out = append(out, candidate.result)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func trimFused(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// preferRicherResult keeps the fullest content/metadata seen for a document
// across sources; payloads can differ per store.
func preferRicherResult(current domain.FusedResult, doc domain.ScoredDocument) domain.FusedResult {
	if len(doc.Content) > len(current.Content) {
		current.Content = doc.Content
	}
	if current.Metadata == nil && len(doc.Metadata) > 0 {
		current.Metadata = make(map[string]string, len(doc.Metadata))
	}
	for k, v := range doc.Metadata {
		if _, ok := current.Metadata[k]; !ok {
			current.Metadata[k] = v
		}
	}
	return current
}

func sortSources(sources []domain.Source) {
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
}

// classifySearchError maps context deadline errors onto the adapter timeout
// kind so callers can distinguish slow stores from broken ones.
func classifySearchError(source domain.Source, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrAdapterTimeout, "search "+string(source), err)
	}
	return err
}
