package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/platinummonkey/keyhole/pkg/observability"
	"golang.org/x/oauth2"
)

// StateTTL bounds how long a browser may take to come back from the provider
const StateTTL = 10 * time.Minute

// IdentityClaim is the provider's assertion of who the user is. It is
// consumed immediately by the allowlist check and never persisted.
type IdentityClaim struct {
	Username   string
	Subject    string
	Attributes map[string]string
}

// String keeps claims out of logs in plaintext
func (c IdentityClaim) String() string {
	return fmt.Sprintf("IdentityClaim{user:%s}", HashUsername(c.Username))
}

// HashUsername returns a short stable digest of a username, safe for logs
func HashUsername(username string) string {
	return observability.HashUsername(username)
}

// DelegationState correlates the redirect to the provider with the request
// that comes back from it
type DelegationState struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	ReturnPath   string    `json:"return_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the state is older than StateTTL at now
func (s *DelegationState) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > StateTTL
}

// NewDelegationState mints a fresh state, nonce and PKCE verifier
func NewDelegationState(returnPath string) (*DelegationState, error) {
	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}

	return &DelegationState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		ReturnPath:   returnPath,
		CreatedAt:    time.Now(),
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Helper functions

func getStringValue(data map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func flattenClaims(dst map[string]string, claims map[string]interface{}) {
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			dst[k] = val
		case bool:
			dst[k] = fmt.Sprintf("%t", val)
		case float64:
			dst[k] = fmt.Sprintf("%g", val)
		}
	}
}
