// Package ssotest provides an in-process OpenID Connect issuer for tests.
package ssotest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "ssotest"

// Grant is what the issuer returns for one authorization code
type Grant struct {
	Subject       string
	Nonce         string
	CodeChallenge string
	IDClaims      map[string]interface{}
	UserInfo      map[string]interface{}
}

// Issuer is a minimal discovery, JWKS, token and userinfo server
type Issuer struct {
	Server       *httptest.Server
	ClientID     string
	ClientSecret string

	// DisableEndSession omits end_session_endpoint from discovery
	DisableEndSession bool

	key *rsa.PrivateKey

	mu           sync.Mutex
	grants       map[string]Grant
	accessTokens map[string]Grant
	tokenCalls   int
}

// NewIssuer starts an issuer for clientID. It is closed with the test.
func NewIssuer(t testing.TB, clientID, clientSecret string) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	iss := &Issuer{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		key:          key,
		grants:       make(map[string]Grant),
		accessTokens: make(map[string]Grant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", iss.discovery)
	mux.HandleFunc("/jwks", iss.jwks)
	mux.HandleFunc("/token", iss.token)
	mux.HandleFunc("/userinfo", iss.userinfo)
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)

	return iss
}

// URL is the issuer URL
func (iss *Issuer) URL() string {
	return iss.Server.URL
}

// Grant registers code so that the token endpoint will redeem it
func (iss *Issuer) Grant(code string, g Grant) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.grants[code] = g
}

// TokenCalls reports how many times the token endpoint was hit
func (iss *Issuer) TokenCalls() int {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.tokenCalls
}

// SignIDToken signs claims with the issuer key
func (iss *Issuer) SignIDToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(iss.key)
}

func (iss *Issuer) discovery(w http.ResponseWriter, r *http.Request) {
	doc := map[string]interface{}{
		"issuer":                                iss.URL(),
		"authorization_endpoint":                iss.URL() + "/authorize",
		"token_endpoint":                        iss.URL() + "/token",
		"userinfo_endpoint":                     iss.URL() + "/userinfo",
		"jwks_uri":                              iss.URL() + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
	}
	if !iss.DisableEndSession {
		doc["end_session_endpoint"] = iss.URL() + "/logout"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (iss *Issuer) jwks(w http.ResponseWriter, r *http.Request) {
	pub := iss.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (iss *Issuer) token(w http.ResponseWriter, r *http.Request) {
	iss.mu.Lock()
	iss.tokenCalls++
	iss.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	clientID, secret, ok := r.BasicAuth()
	if !ok {
		clientID, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != iss.ClientID || secret != iss.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	code := r.PostForm.Get("code")
	iss.mu.Lock()
	g, found := iss.grants[code]
	delete(iss.grants, code)
	iss.mu.Unlock()
	if !found {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	if g.CodeChallenge != "" {
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != g.CodeChallenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   iss.URL(),
		"sub":   g.Subject,
		"aud":   iss.ClientID,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": g.Nonce,
	}
	for k, v := range g.IDClaims {
		claims[k] = v
	}
	idToken, err := iss.SignIDToken(claims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	accessToken := "at-" + code
	iss.mu.Lock()
	iss.accessTokens[accessToken] = g
	iss.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (iss *Issuer) userinfo(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	iss.mu.Lock()
	g, ok := iss.accessTokens[auth[len(prefix):]]
	iss.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	info := map[string]interface{}{"sub": g.Subject}
	for k, v := range g.UserInfo {
		info[k] = v
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
