package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

const (
	defaultTTL = 30 * time.Minute
	keyPrefix  = "ctxe:session:"
)

// Store keeps working memory in Redis as JSON under a sliding TTL. Expired
// entries vanish silently; the closed-session summary path only runs on an
// explicit close with this backend.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Connect accepts either a redis:// URL or a bare host:port address.
func Connect(addr string) (*redis.Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.WorkingMemory, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var memory domain.WorkingMemory
	if err := json.Unmarshal(raw, &memory); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &memory, nil
}

func (s *Store) Put(ctx context.Context, memory *domain.WorkingMemory) error {
	if memory == nil || memory.SessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put session", errors.New("missing session id"))
	}
	raw, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", memory.SessionID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+memory.SessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
