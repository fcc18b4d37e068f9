package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrUnconfigured is returned when the minimum delegation parameters are
// missing. Callers treat it as "delegation unavailable", never as a denial.
var ErrUnconfigured = errors.New("identity provider delegation is not configured")

// DefaultErrorMessage is shown on the login page when the provider returns
// a user that has no local account
const DefaultErrorMessage = "User account not found."

// DefaultUsernameClaim is the userinfo claim carrying the local username
const DefaultUsernameClaim = "preferred_username"

// DelegationConfig holds the identity provider settings for one request
type DelegationConfig struct {
	ProviderURL  string
	ClientID     string
	ClientSecret string // Optional, public clients authenticate with PKCE only

	AuthMethods []string
	RedirectURL string
	Scopes      []string

	// Endpoint overrides, empty means use the discovered endpoint
	TokenEndpoint    string
	UserInfoEndpoint string
	LogoutEndpoint   string

	ErrorMessage  string
	UsernameClaim string

	// HTTPTimeout bounds every round trip to the provider
	HTTPTimeout time.Duration
}

// IsPublicClient reports whether the client has no secret
func (c DelegationConfig) IsPublicClient() bool {
	return c.ClientSecret == ""
}

// Key returns a string identifying the provider-facing parts of the config,
// used to decide whether a cached provider client is still valid
func (c DelegationConfig) Key() string {
	return strings.Join([]string{
		c.ProviderURL,
		c.ClientID,
		c.ClientSecret,
		strings.Join(c.AuthMethods, " "),
		c.RedirectURL,
		strings.Join(c.Scopes, " "),
		c.TokenEndpoint,
		c.UserInfoEndpoint,
		c.LogoutEndpoint,
		c.UsernameClaim,
		c.HTTPTimeout.String(),
	}, "\x00")
}

// DelegationLoader yields the delegation config for the current request
type DelegationLoader interface {
	Load() (DelegationConfig, error)
}

// EnvDelegationLoader re-reads the OIDC_* environment on every call
type EnvDelegationLoader struct{}

// Load implements DelegationLoader
func (EnvDelegationLoader) Load() (DelegationConfig, error) {
	return LoadDelegation(os.Getenv)
}

// StaticDelegationLoader validates and serves a fixed config
type StaticDelegationLoader struct {
	Config DelegationConfig
}

// Load implements DelegationLoader
func (l StaticDelegationLoader) Load() (DelegationConfig, error) {
	cfg := l.Config
	if err := cfg.validate(); err != nil {
		return DelegationConfig{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDelegation builds a DelegationConfig from the given lookup function.
// Only the provider URL and client ID are required.
func LoadDelegation(getenv func(string) string) (DelegationConfig, error) {
	get := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	cfg := DelegationConfig{
		ProviderURL:      get("OIDC_PROVIDER_URL"),
		ClientID:         get("OIDC_CLIENT_ID"),
		ClientSecret:     get("OIDC_CLIENT_SECRET"),
		AuthMethods:      splitList(get("OIDC_AUTH_METHODS")),
		RedirectURL:      get("OIDC_REDIRECT_URL"),
		Scopes:           splitList(get("OIDC_SCOPES")),
		TokenEndpoint:    get("OIDC_TOKEN_ENDPOINT"),
		UserInfoEndpoint: get("OIDC_USER_INFO_ENDPOINT"),
		LogoutEndpoint:   get("OIDC_LOGOUT_ENDPOINT"),
		ErrorMessage:     get("OIDC_ERROR_MESSAGE"),
		UsernameClaim:    get("OIDC_USERNAME_CLAIM"),
	}

	if raw := get("OIDC_HTTP_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return DelegationConfig{}, fmt.Errorf("invalid OIDC_HTTP_TIMEOUT %q: %w", raw, err)
		}
		cfg.HTTPTimeout = timeout
	}

	if err := cfg.validate(); err != nil {
		return DelegationConfig{}, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *DelegationConfig) validate() error {
	if strings.TrimSpace(c.ProviderURL) == "" {
		return fmt.Errorf("%w: OIDC_PROVIDER_URL is empty", ErrUnconfigured)
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: OIDC_CLIENT_ID is empty", ErrUnconfigured)
	}
	return nil
}

func (c *DelegationConfig) applyDefaults() {
	if c.ErrorMessage == "" {
		c.ErrorMessage = DefaultErrorMessage
	}
	if c.UsernameClaim == "" {
		c.UsernameClaim = DefaultUsernameClaim
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
}

// splitList splits a space or comma separated list
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
