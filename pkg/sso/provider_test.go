package sso

import (
	"context"
	"errors"
	"testing"

	"github.com/platinummonkey/keyhole/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) AuthCodeURL(*DelegationState) string { return f.name }
func (f *fakeProvider) Exchange(context.Context, string, *DelegationState) (*IdentityClaim, error) {
	return nil, nil
}
func (f *fakeProvider) EndSessionURL(string) (string, bool) { return "", false }

func TestProviderCache(t *testing.T) {
	builds := 0
	fail := false
	cache, err := NewProviderCache(func(_ context.Context, cfg config.DelegationConfig) (IdentityProvider, error) {
		builds++
		if fail {
			return nil, errors.New("discovery failed")
		}
		return &fakeProvider{name: cfg.ClientID}, nil
	}, 2)
	require.NoError(t, err)

	ctx := context.Background()
	a := config.DelegationConfig{ProviderURL: "https://idp", ClientID: "a"}
	b := config.DelegationConfig{ProviderURL: "https://idp", ClientID: "b"}

	p1, err := cache.Get(ctx, a)
	require.NoError(t, err)
	p2, err := cache.Get(ctx, a)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, builds)

	p3, err := cache.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "b", p3.AuthCodeURL(nil))
	assert.Equal(t, 2, builds)

	fail = true
	c := config.DelegationConfig{ProviderURL: "https://idp", ClientID: "c"}
	_, err = cache.Get(ctx, c)
	assert.Error(t, err)
	_, err = cache.Get(ctx, c)
	assert.Error(t, err)
	assert.Equal(t, 4, builds, "failed builds are retried")
}
