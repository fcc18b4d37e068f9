package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/keyhole/pkg/config"
	"golang.org/x/oauth2"
)

// ErrNonceMismatch is returned when the ID token was minted for another login
var ErrNonceMismatch = errors.New("id token nonce does not match")

// providerMetadata holds discovery fields go-oidc does not expose directly
type providerMetadata struct {
	Issuer     string   `json:"issuer"`
	JWKSURL    string   `json:"jwks_uri"`
	EndSession string   `json:"end_session_endpoint"`
	Algorithms []string `json:"id_token_signing_alg_values_supported"`
}

// OIDCProvider implements IdentityProvider over coreos/go-oidc and
// x/oauth2
type OIDCProvider struct {
	cfg          config.DelegationConfig
	httpClient   *http.Client
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	endSession   string
}

// NewOIDCProvider runs discovery against cfg.ProviderURL and applies the
// endpoint overrides
func NewOIDCProvider(ctx context.Context, cfg config.DelegationConfig) (*OIDCProvider, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ctx = oidc.ClientContext(ctx, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	var meta providerMetadata
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("failed to parse provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	if cfg.TokenEndpoint != "" || cfg.UserInfoEndpoint != "" {
		pc := &oidc.ProviderConfig{
			IssuerURL:   meta.Issuer,
			AuthURL:     endpoint.AuthURL,
			TokenURL:    endpoint.TokenURL,
			UserInfoURL: provider.UserInfoEndpoint(),
			JWKSURL:     meta.JWKSURL,
			Algorithms:  meta.Algorithms,
		}
		if cfg.TokenEndpoint != "" {
			pc.TokenURL = cfg.TokenEndpoint
		}
		if cfg.UserInfoEndpoint != "" {
			pc.UserInfoURL = cfg.UserInfoEndpoint
		}
		provider = pc.NewProvider(ctx)
		endpoint = provider.Endpoint()
	}
	endpoint.AuthStyle = authStyle(cfg)

	endSession := meta.EndSession
	if cfg.LogoutEndpoint != "" {
		endSession = cfg.LogoutEndpoint
	}

	return &OIDCProvider{
		cfg:        cfg,
		httpClient: httpClient,
		provider:   provider,
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       withOpenIDScope(cfg.Scopes),
		},
		endSession: endSession,
	}, nil
}

// AuthCodeURL implements IdentityProvider
func (p *OIDCProvider) AuthCodeURL(st *DelegationState) string {
	return p.oauth2Config.AuthCodeURL(st.State,
		oidc.Nonce(st.Nonce),
		oauth2.S256ChallengeOption(st.CodeVerifier),
	)
}

// Exchange implements IdentityProvider
func (p *OIDCProvider) Exchange(ctx context.Context, code string, st *DelegationState) (*IdentityClaim, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}
	ctx = oidc.ClientContext(ctx, p.httpClient)

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Nonce != st.Nonce {
		return nil, ErrNonceMismatch
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	claim := &IdentityClaim{
		Subject:    idToken.Subject,
		Attributes: make(map[string]string),
	}
	flattenClaims(claim.Attributes, claims)
	claim.Username = getStringValue(claims, p.cfg.UsernameClaim)

	if p.provider.UserInfoEndpoint() != "" {
		userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(oauth2Token))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user info: %w", err)
		}
		if userInfo.Subject != idToken.Subject {
			return nil, fmt.Errorf("user info subject does not match id token")
		}

		var info map[string]interface{}
		if err := userInfo.Claims(&info); err != nil {
			return nil, fmt.Errorf("failed to parse user info: %w", err)
		}
		flattenClaims(claim.Attributes, info)
		if username := getStringValue(info, p.cfg.UsernameClaim); username != "" {
			claim.Username = username
		}
	}

	return claim, nil
}

// EndSessionURL implements IdentityProvider
func (p *OIDCProvider) EndSessionURL(postLogoutRedirect string) (string, bool) {
	if p.endSession == "" {
		return "", false
	}

	u, err := url.Parse(p.endSession)
	if err != nil {
		return "", false
	}
	q := u.Query()
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	q.Set("client_id", p.cfg.ClientID)
	u.RawQuery = q.Encode()
	return u.String(), true
}

// authStyle maps OIDC token endpoint auth method names to oauth2 styles.
// The first recognised method wins. Public clients default to sending the
// client ID in the form body since they have no secret for basic auth.
func authStyle(cfg config.DelegationConfig) oauth2.AuthStyle {
	for _, m := range cfg.AuthMethods {
		switch m {
		case "client_secret_basic":
			return oauth2.AuthStyleInHeader
		case "client_secret_post", "none":
			return oauth2.AuthStyleInParams
		}
	}
	if cfg.IsPublicClient() {
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleAutoDetect
}

func withOpenIDScope(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{oidc.ScopeOpenID, "profile"}
	}
	for _, s := range scopes {
		if s == oidc.ScopeOpenID {
			return scopes
		}
	}
	return append([]string{oidc.ScopeOpenID}, scopes...)
}
