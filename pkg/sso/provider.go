package sso

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/platinummonkey/keyhole/pkg/config"
)

// IdentityProvider is the part of an OpenID Connect provider the login gate
// talks to
type IdentityProvider interface {
	// AuthCodeURL returns the authorization URL for a fresh delegation
	AuthCodeURL(st *DelegationState) string

	// Exchange redeems the authorization code, verifies the ID token against
	// st and returns the identity claim
	Exchange(ctx context.Context, code string, st *DelegationState) (*IdentityClaim, error)

	// EndSessionURL returns the provider sign-out URL redirecting back to
	// postLogoutRedirect. ok is false when the provider has none.
	EndSessionURL(postLogoutRedirect string) (endSession string, ok bool)
}

// ProviderFactory builds an IdentityProvider for a delegation config
type ProviderFactory func(ctx context.Context, cfg config.DelegationConfig) (IdentityProvider, error)

// ProviderCache keeps built providers keyed by the config that produced
// them, so discovery runs once per distinct configuration
type ProviderCache struct {
	factory ProviderFactory
	cache   *lru.Cache[string, IdentityProvider]
	mu      sync.Mutex
}

// NewProviderCache creates a cache. A nil factory means NewOIDCProvider.
func NewProviderCache(factory ProviderFactory, size int) (*ProviderCache, error) {
	if factory == nil {
		factory = func(ctx context.Context, cfg config.DelegationConfig) (IdentityProvider, error) {
			return NewOIDCProvider(ctx, cfg)
		}
	}
	if size <= 0 {
		size = 4
	}

	cache, err := lru.New[string, IdentityProvider](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider cache: %w", err)
	}

	return &ProviderCache{factory: factory, cache: cache}, nil
}

// Get returns the cached provider for cfg, building it on first use.
// Failed builds are not cached.
func (c *ProviderCache) Get(ctx context.Context, cfg config.DelegationConfig) (IdentityProvider, error) {
	key := cfg.Key()
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	p, err := c.factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}
