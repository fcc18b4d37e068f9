package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrStateNotFound is returned for an unknown, expired or already consumed
// state
var ErrStateNotFound = errors.New("delegation state not found")

// StateStore holds in-flight delegation state between the redirect to the
// provider and the callback. Each state can be consumed once.
type StateStore interface {
	Save(ctx context.Context, st *DelegationState) error
	Consume(ctx context.Context, state string) (*DelegationState, error)
}

// RedisStateStore shares state between instances
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore creates a store whose entries live for StateTTL
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: "keyhole:oidc:state:",
		ttl:    StateTTL,
	}
}

// Save implements StateStore
func (s *RedisStateStore) Save(ctx context.Context, st *DelegationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal delegation state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+st.State, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Consume implements StateStore
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*DelegationState, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}

	data, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel failed: %w", err)
	}

	var st DelegationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delegation state: %w", err)
	}
	if st.Expired(time.Now()) {
		return nil, ErrStateNotFound
	}
	return &st, nil
}

// MemoryStateStore keeps state in process, for single instance deployments
type MemoryStateStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *DelegationState]
}

// NewMemoryStateStore holds at most size in-flight logins
func NewMemoryStateStore(size int) *MemoryStateStore {
	if size <= 0 {
		size = 10000
	}
	return &MemoryStateStore{
		cache: expirable.NewLRU[string, *DelegationState](size, nil, StateTTL),
	}
}

// Save implements StateStore
func (s *MemoryStateStore) Save(_ context.Context, st *DelegationState) error {
	copied := *st
	s.cache.Add(st.State, &copied)
	return nil
}

// Consume implements StateStore
func (s *MemoryStateStore) Consume(_ context.Context, state string) (*DelegationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.cache.Get(state)
	if !ok {
		return nil, ErrStateNotFound
	}
	s.cache.Remove(state)

	if st.Expired(time.Now()) {
		return nil, ErrStateNotFound
	}
	return st, nil
}
