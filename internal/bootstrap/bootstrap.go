package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dialogiq/context-engine/internal/config"
	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/core/ports"
	"github.com/dialogiq/context-engine/internal/core/usecase"
	"github.com/dialogiq/context-engine/internal/infrastructure/embedding/ollama"
	fulltextpg "github.com/dialogiq/context-engine/internal/infrastructure/fulltext/postgres"
	graphneo4j "github.com/dialogiq/context-engine/internal/infrastructure/graph/neo4j"
	"github.com/dialogiq/context-engine/internal/infrastructure/queue/nats"
	"github.com/dialogiq/context-engine/internal/infrastructure/repository/postgres"
	"github.com/dialogiq/context-engine/internal/infrastructure/rerank/tei"
	"github.com/dialogiq/context-engine/internal/infrastructure/resilience"
	memstore "github.com/dialogiq/context-engine/internal/infrastructure/session/memory"
	redisstore "github.com/dialogiq/context-engine/internal/infrastructure/session/redis"
	"github.com/dialogiq/context-engine/internal/infrastructure/vector/qdrant"
	"github.com/dialogiq/context-engine/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.ProfileEventQueue
	Contexts  *usecase.ContextAssembler
	Retrieval *usecase.Retrieval
	Profiles  ports.ProfileDirectory
	Events    *usecase.ProfileEventService

	ServerMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	natsQueue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init profile event queue: %w", err)
	}

	embedder := ollama.New(cfg.EmbedURL, cfg.EmbedModel, executor)
	scorer := tei.New(cfg.RerankURL, cfg.RerankModel, executor)

	graphDriver, err := graphneo4j.Connect(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, fmt.Errorf("init graph driver: %w", err)
	}

	serverMetrics := metrics.NewHTTPServerMetrics(service)
	queue := &instrumentedQueue{inner: natsQueue, metrics: serverMetrics, service: service}
	searchers := []ports.DocumentSearcher{
		qdrant.NewSearcher(cfg.QdrantURL, cfg.QdrantCollection, embedder, executor),
		fulltextpg.NewSearcher(db),
		graphneo4j.NewSearcher(graphDriver, cfg.Neo4jDatabase, executor),
	}
	for i, searcher := range searchers {
		searchers[i] = &instrumentedSearcher{inner: searcher, metrics: serverMetrics, service: service}
	}

	lexicon, err := usecase.LoadLexicon()
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	profileRepo := postgres.NewProfileRepository(db)
	transitionRepo := postgres.NewTransitionRepository(db)

	fusion := usecase.NewFusion(searchers, cfg.FusionRRFK, cfg.FusionKPerSource, msDuration(cfg.AdapterTimeoutMs))
	reranker := usecase.NewReranker(scorer, cfg.RerankTopN, msDuration(cfg.RerankTimeoutMs))
	retrieval := usecase.NewRetrieval(fusion, reranker, cfg.FusionKFused)

	intents := usecase.NewIntentTracker(lexicon, transitionRepo, cfg.IntentFallbackConfidence)
	stages := usecase.NewStageDetector(lexicon)
	profiles := usecase.NewProfileService(profileRepo)
	renderer := usecase.NewContextRenderer(usecase.NewTokenCounter(), cfg.ContextTokenBudget)

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	hook := &expiryHook{}
	sessions, err := newSessionStore(cfg, sessionTTL, hook.handle)
	if err != nil {
		return nil, err
	}

	assembler, err := usecase.NewContextAssembler(
		retrieval,
		intents,
		stages,
		lexicon,
		sessions,
		profiles,
		queue,
		renderer,
		usecase.ContextLimits{
			Deadline:     msDuration(cfg.ContextDeadlineMs),
			MaxTurns:     cfg.SessionMaxTurns,
			HistoryLimit: cfg.IntentHistoryLimit,
			CacheSize:    cfg.ContextCacheSize,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("init context assembler: %w", err)
	}
	hook.bind(assembler)

	events := usecase.NewProfileEventService(profiles, transitionRepo)

	return &App{
		Config: cfg,

		Queue:     queue,
		Contexts:  assembler,
		Retrieval: retrieval,
		Profiles:  profiles,
		Events:    events,

		ServerMetrics: serverMetrics,

		closeFn: func() {
			natsQueue.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graphDriver.Close(shutdownCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newSessionStore(cfg config.Config, ttl time.Duration, onExpire func(*domain.WorkingMemory)) (ports.SessionStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionBackend)) {
	case "", "memory":
		return memstore.NewStore(ttl, onExpire), nil
	case "redis":
		client, err := redisstore.Connect(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("init redis session store: %w", err)
		}
		return redisstore.NewStore(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// expiryHook breaks the construction cycle between the in-memory session
// store, which needs an eviction callback, and the assembler, which owns the
// session-closed publish path and needs the store.
type expiryHook struct {
	mu        sync.Mutex
	assembler *usecase.ContextAssembler
}

func (h *expiryHook) bind(assembler *usecase.ContextAssembler) {
	h.mu.Lock()
	h.assembler = assembler
	h.mu.Unlock()
}

func (h *expiryHook) handle(memory *domain.WorkingMemory) {
	h.mu.Lock()
	assembler := h.assembler
	h.mu.Unlock()
	if assembler == nil || memory == nil {
		return
	}
	if err := assembler.HandleExpiredSession(memory); err != nil {
		slog.Warn("expired session flush failed", "session_id", memory.SessionID, "error", err)
	}
}

type instrumentedQueue struct {
	inner   ports.ProfileEventQueue
	metrics *metrics.HTTPServerMetrics
	service string
}

func (q *instrumentedQueue) PublishProfileEvent(ctx context.Context, event domain.ProfileEvent) error {
	err := q.inner.PublishProfileEvent(ctx, event)
	q.metrics.RecordProfileEventPublished(q.service, string(event.Kind), err)
	return err
}

func (q *instrumentedQueue) SubscribeProfileEvents(ctx context.Context, handler func(context.Context, domain.ProfileEvent) error) error {
	return q.inner.SubscribeProfileEvents(ctx, handler)
}

type instrumentedSearcher struct {
	inner   ports.DocumentSearcher
	metrics *metrics.HTTPServerMetrics
	service string
}

func (s *instrumentedSearcher) Source() domain.Source {
	return s.inner.Source()
}

func (s *instrumentedSearcher) Search(ctx context.Context, query string, filters domain.SearchFilters, k int) ([]domain.ScoredDocument, error) {
	start := time.Now()
	docs, err := s.inner.Search(ctx, query, filters, k)
	s.metrics.ObserveSourceSearch(s.service, string(s.inner.Source()), time.Since(start), err)
	return docs, err
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
