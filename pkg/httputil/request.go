package httputil

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// CanonicalPath returns the request path with the query string dropped,
// falling back to "/" for an empty path
func CanonicalPath(r *http.Request) string {
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// LoginPath is the admin entry point that also receives the login form
const LoginPath = "/admin/"

// IsAPIRequest reports whether the request comes from a programmatic
// client: anything under /api/ or carrying a signature parameter. The body
// is only consulted for form posts to LoginPath, which parses it anyway.
func IsAPIRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if r.URL.Query().Get("signature") != "" {
		return true
	}
	if r.Method != http.MethodPost || r.URL.Path != LoginPath {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return false
	}
	return r.PostFormValue("signature") != ""
}
