// Package api wires keyhole's HTTP surface.
//
// # Routes
//
//	GET      /                  redirect to /admin/
//	GET|POST /admin/            admin page, or the login page when there is no session
//	GET|POST /admin/logout      end the session (and the provider session)
//	POST     /api/submissions   flood guarded write
//
// The admin page asks the login gate for every request. The gate may answer
// the request itself (a redirect to the identity provider, or back to the
// clean URL after a successful callback); handlers detect that and stop. A
// failed exchange with the provider ends the request with 502 and never
// falls back to the local login page.
//
// Requests under /api/ and requests carrying a signature parameter are
// programmatic and never redirected to the provider.
//
// # Usage
//
//	server, err := api.NewServer(api.ServerOptions{...})
//	http.ListenAndServe(":8080", server.Handler())
package api
