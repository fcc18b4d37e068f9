// Package auth decides who gets an admin session.
//
// Gate implements Delegate: on an unauthenticated interactive request it
// sends the browser to the OpenID Connect provider, and on the way back it
// admits the user only if the returned username is in the Allowlist. A
// delegation failure is fatal for the request; a username missing from the
// allowlist is not, and the host shows its login page with the native form
// masked by RenderLoginTop and RenderLoginEnd.
//
// Sessions are HS256 JWTs in an HttpOnly cookie (SessionManager).
package auth
