package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

const defaultTTL = 30 * time.Minute

// Store keeps working memory in process under a sliding TTL: every Put
// rewrites the entry with a fresh expiration, so the window slides on
// activity. onExpire fires for TTL evictions only, never for explicit
// deletes.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration

	mu       sync.Mutex
	deleting map[string]bool
}

func NewStore(ttl time.Duration, onExpire func(*domain.WorkingMemory)) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	store := &Store{
		cache:    cache.New(ttl, time.Minute),
		ttl:      ttl,
		deleting: make(map[string]bool),
	}
	if onExpire != nil {
		store.cache.OnEvicted(func(key string, value any) {
			store.mu.Lock()
			skip := store.deleting[key]
			store.mu.Unlock()
			if skip {
				return
			}
			memory, ok := value.(*domain.WorkingMemory)
			if !ok || memory == nil {
				return
			}
			onExpire(memory)
		})
	}
	return store
}

func (s *Store) Get(_ context.Context, sessionID string) (*domain.WorkingMemory, error) {
	value, found := s.cache.Get(sessionID)
	if !found {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	memory, ok := value.(*domain.WorkingMemory)
	if !ok || memory == nil {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	return copyMemory(memory), nil
}

func (s *Store) Put(_ context.Context, memory *domain.WorkingMemory) error {
	if memory == nil || memory.SessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put session", errors.New("missing session id"))
	}
	s.cache.Set(memory.SessionID, copyMemory(memory), s.ttl)
	return nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	s.deleting[sessionID] = true
	s.mu.Unlock()

	s.cache.Delete(sessionID)

	s.mu.Lock()
	delete(s.deleting, sessionID)
	s.mu.Unlock()
	return nil
}

// Entries are copied on both Put and Get so callers never share state with
// the cache or with the expiry callback.
func copyMemory(memory *domain.WorkingMemory) *domain.WorkingMemory {
	out := *memory
	if memory.Turns != nil {
		out.Turns = append([]domain.Turn(nil), memory.Turns...)
	}
	if memory.IntentHistory != nil {
		out.IntentHistory = append([]domain.Intent(nil), memory.IntentHistory...)
	}
	if memory.PendingFacts != nil {
		out.PendingFacts = make(map[string]string, len(memory.PendingFacts))
		for k, v := range memory.PendingFacts {
			out.PendingFacts[k] = v
		}
	}
	return &out
}
