// Package sso talks to the OpenID Connect identity provider on behalf of the
// login gate.
//
// A delegation spans two requests. The first mints a DelegationState (state,
// nonce and PKCE verifier), saves it in a StateStore and redirects the
// browser to AuthCodeURL. The second comes back with a code and the state;
// the gate consumes the state and calls Exchange, which verifies the ID
// token and merges the userinfo response into an IdentityClaim.
//
// OIDCProvider wraps coreos/go-oidc discovery. Token, userinfo and logout
// endpoints can be overridden; ProviderCache keeps one provider per
// distinct configuration.
package sso
