package httputil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "extra": 1}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest.Name)
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`nope`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCanonicalPath(t *testing.T) {
	req := httptest.NewRequest("GET", "/admin/?code=abc&state=xyz", nil)
	assert.Equal(t, "/admin/", CanonicalPath(req))

	req.URL.Path = ""
	assert.Equal(t, "/", CanonicalPath(req))
}

func TestIsAPIRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
		want bool
	}{
		{"api prefix", httptest.NewRequest("POST", "/api/submissions", nil), true},
		{"signature query", httptest.NewRequest("GET", "/admin/?signature=abc", nil), true},
		{
			"signature form",
			func() *http.Request {
				r := httptest.NewRequest("POST", "/admin/", strings.NewReader("signature=abc"))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			}(),
			true,
		},
		{
			"signature form outside login page",
			func() *http.Request {
				r := httptest.NewRequest("POST", "/admin/logout", strings.NewReader("signature=abc"))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			}(),
			false,
		},
		{
			"signature in json body",
			func() *http.Request {
				r := httptest.NewRequest("POST", "/admin/", strings.NewReader(`{"signature":"abc"}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			}(),
			false,
		},
		{"admin page", httptest.NewRequest("GET", "/admin/", nil), false},
		{"apiary is not api", httptest.NewRequest("GET", "/apiary", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAPIRequest(tt.req))
		})
	}
}

func TestIsAPIRequest_LeavesOtherBodiesUnread(t *testing.T) {
	for _, target := range []string{"/admin/logout", "/elsewhere"} {
		r := httptest.NewRequest("POST", target, strings.NewReader("url=https%3A%2F%2Fexample.com&signature=abc"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		assert.False(t, IsAPIRequest(r))
		assert.Nil(t, r.PostForm, "body of %s must not be parsed", target)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "signature=abc")
	}
}
