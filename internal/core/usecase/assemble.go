package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
)

const (
	defaultContextDeadline = 800 * time.Millisecond
	defaultMaxTurns        = 40
	defaultHistoryLimit    = 20
	defaultContextPassages = 6
	defaultLastGoodSize    = 1024
	contextSummaryCount    = 5
	publishTimeout         = 2 * time.Second
	sessionLockStripes     = 256
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{8,}\d`)
)

// ContextLimits bounds one context build.
type ContextLimits struct {
	Deadline     time.Duration
	MaxTurns     int
	HistoryLimit int
	Passages     int
	CacheSize    int
}

// ContextAssembler orchestrates, per inbound message: fused retrieval,
// intent classification with stage update against working memory, and
// profile lookup, all joined under one hard deadline into a token-bounded
// payload. Turns of the same session are serialized through striped locks;
// different sessions proceed in parallel.
type ContextAssembler struct {
	retrieval *Retrieval
	intents   *IntentTracker
	stages    *StageDetector
	lexicon   *Lexicon
	sessions  ports.SessionStore
	profiles  ports.ProfileDirectory
	queue     ports.ProfileEventQueue
	renderer  *ContextRenderer
	limits    ContextLimits

	lastGood *lru.Cache[string, domain.ContextPayload]
	locks    [sessionLockStripes]sync.Mutex
}

func NewContextAssembler(
	retrieval *Retrieval,
	intents *IntentTracker,
	stages *StageDetector,
	lexicon *Lexicon,
	sessions ports.SessionStore,
	profiles ports.ProfileDirectory,
	queue ports.ProfileEventQueue,
	renderer *ContextRenderer,
	limits ContextLimits,
) (*ContextAssembler, error) {
	if limits.Deadline <= 0 {
		limits.Deadline = defaultContextDeadline
	}
	if limits.MaxTurns <= 0 {
		limits.MaxTurns = defaultMaxTurns
	}
	if limits.HistoryLimit <= 0 {
		limits.HistoryLimit = defaultHistoryLimit
	}
	if limits.Passages <= 0 {
		limits.Passages = defaultContextPassages
	}
	if limits.CacheSize <= 0 {
		limits.CacheSize = defaultLastGoodSize
	}

	lastGood, err := lru.New[string, domain.ContextPayload](limits.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}
	return &ContextAssembler{
		retrieval: retrieval,
		intents:   intents,
		stages:    stages,
		lexicon:   lexicon,
		sessions:  sessions,
		profiles:  profiles,
		queue:     queue,
		renderer:  renderer,
		limits:    limits,
		lastGood:  lastGood,
	}, nil
}

// BuildContext is the per-message entry point.
func (a *ContextAssembler) BuildContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextPayload, error) {
	if err := validateContextRequest(req); err != nil {
		return nil, err
	}

	lock := a.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.limits.Deadline)
	defer cancel()

	now := time.Now().UTC()
	memory, sessionErr := a.loadMemory(ctx, req, now)

	identity := req.Identity
	if identity.Empty() {
		identity = memory.Identity
	}
	pending := extractContactFacts(req.Message)
	if email, ok := pending["email"]; ok && identity.Email == "" {
		identity.Email = email
	}
	if phone, ok := pending["phone"]; ok && identity.Phone == "" {
		identity.Phone = phone
	}
	anonymous := identity.Empty()

	var (
		wg          sync.WaitGroup
		set         *domain.FusedSet
		retrieveErr error
		profile     *domain.UserProfile
		profileErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		filters := domain.SearchFilters{TenantID: req.TenantID, BotID: req.BotID}
		set, retrieveErr = a.retrieval.Retrieve(ctx, req.Message, filters, a.limits.Passages)
	}()

	if !anonymous {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, _, profileErr = a.profiles.FindOrCreate(ctx, req.TenantID, req.BotID, identity)
		}()
	}

	// The intent/stage branch runs alongside the I/O branches; it is pure
	// computation over working memory this goroutine exclusively owns.
	raw := a.intents.Classify(req.Message)
	resolved := a.intents.Resolve(raw, memory.IntentHistory)
	memory.Stage = a.stages.Advance(memory.Stage, resolved.Category, now)
	sentiment := a.lexicon.ScoreSentiment(req.Message)
	appendTurn(memory, req.Message, resolved.Category, sentiment, now, a.limits.MaxTurns)
	appendIntent(memory, raw, a.limits.HistoryLimit)
	memory.CurrentIntent = resolved
	memory.Identity = identity
	if len(pending) > 0 {
		if memory.PendingFacts == nil {
			memory.PendingFacts = make(map[string]string, len(pending))
		}
		for key, value := range pending {
			memory.PendingFacts[key] = value
		}
	}
	memory.LastSeen = now

	predicted := a.intents.PredictNext(ctx, req.TenantID, memory.IntentHistory)

	wg.Wait()

	payload := &domain.ContextPayload{
		SessionID:     req.SessionID,
		TenantID:      req.TenantID,
		BotID:         req.BotID,
		Intent:        resolved,
		PredictedNext: predicted.Category,
		Stage:         memory.Stage,
		BuiltAt:       now,
	}
	var reasons []string
	if sessionErr != nil {
		reasons = append(reasons, "session_store_unavailable")
	}

	if retrieveErr != nil {
		payload.Flags.DegradedContext = true
		reasons = append(reasons, retrievalReason(retrieveErr))
	} else {
		payload.Passages = toPassages(set.Results)
		payload.Flags.DegradedFusion = set.Degraded
		payload.Flags.RerankFallback = set.RerankFallback
		if set.RerankFallback {
			reasons = append(reasons, "rerank_fallback")
		}
	}

	switch {
	case profileErr != nil:
		payload.Flags.AnonymousProfile = true
		reasons = append(reasons, profileReason(profileErr))
	case profile == nil:
		payload.Flags.AnonymousProfile = true
	default:
		payload.ProfileFacts = renderProfileFacts(profile)
		payload.SessionSummaries = renderProfileSummaries(profile)
		memory.ProfileID = profile.ID
	}

	if retrieveErr != nil && profileErr != nil && sessionErr != nil {
		if cached, ok := a.lastGood.Get(req.SessionID); ok {
			cached.Flags.FromCache = true
			cached.FallbackReasons = reasons
			return &cached, nil
		}
		return nil, domain.WrapError(domain.ErrTemporary, "build context",
			errors.Join(retrieveErr, profileErr, sessionErr))
	}

	payload.Guidance = a.stages.Guidance(memory.Stage.Stage)
	payload.Flags.BudgetTrimmed = a.renderer.Render(payload)
	payload.FallbackReasons = reasons

	if sessionErr == nil {
		if err := a.sessions.Put(ctx, memory); err != nil {
			payload.FallbackReasons = append(payload.FallbackReasons, "session_write_failed")
		}
	}

	a.lastGood.Add(req.SessionID, *payload)

	if !anonymous {
		event := domain.ProfileEvent{
			ID:           uuid.NewString(),
			Kind:         domain.ProfileEventUpdate,
			TenantID:     req.TenantID,
			BotID:        req.BotID,
			SessionID:    req.SessionID,
			Identity:     identity,
			Facts:        copyFacts(memory.PendingFacts),
			Sentiment:    sentiment,
			MessageCount: 1,
			OccurredAt:   now,
		}
		go a.publish(event)
	}

	return payload, nil
}

// CloseSession flushes the session into a closed event and deletes working
// memory. Invoked by the explicit close endpoint.
func (a *ContextAssembler) CloseSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "close session", fmt.Errorf("session_id is required"))
	}

	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	memory, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := a.queue.PublishProfileEvent(ctx, sessionClosedEvent(memory, time.Now().UTC())); err != nil {
		return fmt.Errorf("publish session close: %w", err)
	}
	return a.sessions.Delete(ctx, sessionID)
}

// HandleExpiredSession publishes the closed event for a session the store
// evicted on TTL. Wired as the session store's eviction hook.
func (a *ContextAssembler) HandleExpiredSession(memory *domain.WorkingMemory) error {
	if memory == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return a.queue.PublishProfileEvent(ctx, sessionClosedEvent(memory, time.Now().UTC()))
}

func (a *ContextAssembler) publish(event domain.ProfileEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_ = a.queue.PublishProfileEvent(ctx, event)
}

func (a *ContextAssembler) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &a.locks[h.Sum32()%sessionLockStripes]
}

func (a *ContextAssembler) loadMemory(ctx context.Context, req domain.ContextRequest, now time.Time) (*domain.WorkingMemory, error) {
	memory, err := a.sessions.Get(ctx, req.SessionID)
	if err == nil {
		return memory, nil
	}
	fresh := &domain.WorkingMemory{
		SessionID:    req.SessionID,
		TenantID:     req.TenantID,
		BotID:        req.BotID,
		Stage:        InitialStageState(now),
		PendingFacts: make(map[string]string),
		CreatedAt:    now,
		LastSeen:     now,
	}
	if domain.IsKind(err, domain.ErrSessionNotFound) {
		return fresh, nil
	}
	return fresh, err
}

func validateContextRequest(req domain.ContextRequest) error {
	switch {
	case strings.TrimSpace(req.SessionID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "build context", fmt.Errorf("session_id is required"))
	case strings.TrimSpace(req.TenantID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "build context", fmt.Errorf("tenant_id is required"))
	case strings.TrimSpace(req.BotID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "build context", fmt.Errorf("bot_id is required"))
	case strings.TrimSpace(req.Message) == "":
		return domain.WrapError(domain.ErrInvalidInput, "build context", fmt.Errorf("message is required"))
	}
	return nil
}

func retrievalReason(err error) string {
	if domain.IsKind(err, domain.ErrAllAdaptersFailed) {
		return "retrieval_failed"
	}
	return "retrieval_error"
}

func profileReason(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrIdentityConflict):
		return "identity_conflict"
	case domain.IsKind(err, domain.ErrProfileStoreUnavailable):
		return "profile_store_unavailable"
	default:
		return "profile_error"
	}
}

func toPassages(results []domain.FusedResult) []domain.Passage {
	passages := make([]domain.Passage, 0, len(results))
	for _, result := range results {
		passages = append(passages, domain.Passage{
			ID:      result.ID,
			Content: result.Content,
			Sources: result.ContributingSources,
			Score:   result.FusedScore,
		})
	}
	return passages
}

func renderProfileFacts(profile *domain.UserProfile) []string {
	if len(profile.Facts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(profile.Facts))
	for key := range profile.Facts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	facts := make([]string, 0, len(keys))
	for _, key := range keys {
		facts = append(facts, fmt.Sprintf("%s: %s", key, profile.Facts[key].Value))
	}
	return facts
}

// renderProfileSummaries lists the most recent summaries newest first, so
// budget trimming drops the oldest ones.
func renderProfileSummaries(profile *domain.UserProfile) []string {
	n := len(profile.SessionSummaries)
	if n == 0 {
		return nil
	}
	count := contextSummaryCount
	if count > n {
		count = n
	}
	out := make([]string, 0, count)
	for i := n - 1; i >= n-count; i-- {
		summary := profile.SessionSummaries[i]
		out = append(out, fmt.Sprintf("[%s] %s", summary.CreatedAt.Format("2006-01-02"), summary.Summary))
	}
	return out
}

func appendTurn(memory *domain.WorkingMemory, text string, intent domain.IntentCategory, sentiment float64, now time.Time, limit int) {
	memory.Turns = append(memory.Turns, domain.Turn{
		Role:      domain.TurnRoleUser,
		Text:      text,
		Intent:    intent,
		Sentiment: sentiment,
		CreatedAt: now,
	})
	if len(memory.Turns) > limit {
		memory.Turns = memory.Turns[len(memory.Turns)-limit:]
	}
}

func appendIntent(memory *domain.WorkingMemory, intent domain.Intent, limit int) {
	memory.IntentHistory = append(memory.IntentHistory, intent)
	if len(memory.IntentHistory) > limit {
		memory.IntentHistory = memory.IntentHistory[len(memory.IntentHistory)-limit:]
	}
}

// extractContactFacts pulls contact identifiers typed mid-conversation into
// pending facts, so a lead captured in chat resolves to a profile on the
// next turn.
func extractContactFacts(message string) map[string]string {
	facts := make(map[string]string, 2)
	if email := emailPattern.FindString(message); email != "" {
		facts["email"] = strings.ToLower(email)
	}
	if phone := phonePattern.FindString(message); phone != "" {
		if normalized := normalizePhone(phone); len(normalized) >= 10 {
			facts["phone"] = normalized
		}
	}
	if len(facts) == 0 {
		return nil
	}
	return facts
}

func copyFacts(facts map[string]string) map[string]string {
	if len(facts) == 0 {
		return nil
	}
	out := make(map[string]string, len(facts))
	for key, value := range facts {
		out[key] = value
	}
	return out
}

func sessionClosedEvent(memory *domain.WorkingMemory, now time.Time) domain.ProfileEvent {
	counts := make(map[domain.IntentCategory]int, len(memory.IntentHistory))
	for _, intent := range memory.IntentHistory {
		if intent.Category == domain.IntentUnknown || intent.Category == "" {
			continue
		}
		counts[intent.Category]++
	}
	return domain.ProfileEvent{
		ID:           uuid.NewString(),
		Kind:         domain.ProfileEventSessionClosed,
		TenantID:     memory.TenantID,
		BotID:        memory.BotID,
		SessionID:    memory.SessionID,
		Identity:     memory.Identity,
		Facts:        copyFacts(memory.PendingFacts),
		MessageCount: len(memory.Turns),
		StageReached: memory.Stage.Stage,
		IntentCounts: counts,
		Transitions:  transitionsFromHistory(memory.IntentHistory),
		OccurredAt:   now,
	}
}

func transitionsFromHistory(history []domain.Intent) []domain.IntentTransition {
	var transitions []domain.IntentTransition
	var previous domain.IntentCategory
	for _, intent := range history {
		if intent.Category == domain.IntentUnknown || intent.Category == "" {
			continue
		}
		if previous != "" {
			transitions = append(transitions, domain.IntentTransition{From: previous, To: intent.Category})
		}
		previous = intent.Category
	}
	return transitions
}
