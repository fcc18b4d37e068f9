package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/contextkeys"
	"github.com/platinummonkey/keyhole/pkg/httputil"
	"github.com/platinummonkey/keyhole/pkg/middleware"
	"github.com/platinummonkey/keyhole/pkg/observability"
)

// AdminHandlers serves the session-protected admin area and its login page
type AdminHandlers struct {
	gate auth.Delegate
}

// NewAdminHandlers creates admin handlers around the login gate
func NewAdminHandlers(gate auth.Delegate) *AdminHandlers {
	return &AdminHandlers{gate: gate}
}

// RegisterRoutes registers admin routes on a router mounted at /admin
func (h *AdminHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, httputil.LoginPath, http.StatusMovedPermanently)
	}).Methods(http.MethodGet)
	r.HandleFunc("/", h.index).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodGet, http.MethodPost)
}

func (h *AdminHandlers) index(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r)
	nonInteractive := contextkeys.IsNonInteractive(r.Context())

	tw := &trackingWriter{ResponseWriter: w}
	valid, err := h.gate.Decide(tw, r, session != nil, nonInteractive)

	var delegationErr *auth.DelegationError
	switch {
	case errors.Is(err, auth.ErrDelegationStarted):
		return
	case errors.As(err, &delegationErr):
		observability.FromContext(r.Context()).WithError(err).Error("login delegation failed")
		if !tw.wrote {
			httputil.WriteBadGateway(w, "identity provider login failed")
		}
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("login gate failed")
		httputil.WriteInternalError(w, "internal server error")
		return
	}

	// a completed delegation already redirected to the clean URL
	if tw.wrote {
		return
	}

	if !valid {
		if nonInteractive {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		h.renderLogin(w, r)
		return
	}

	username := ""
	if session != nil {
		username = session.Username
	}
	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return adminPage.Execute(buf, pageData{Username: username})
	}, "Admin")
}

func (h *AdminHandlers) renderLogin(w http.ResponseWriter, r *http.Request) {
	data := pageData{}
	if r.Method == http.MethodPost {
		data.Error = "Invalid username or password"
	}

	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		if err := h.gate.RenderLoginTop(buf); err != nil {
			return err
		}
		if err := loginForm.Execute(buf, data); err != nil {
			return err
		}
		return h.gate.RenderLoginEnd(buf)
	}, "Login")
}

// render buffers a full page so that a template failure still yields a
// clean 500
func (h *AdminHandlers) render(w http.ResponseWriter, r *http.Request, status int, body func(*bytes.Buffer) error, title string) {
	var buf bytes.Buffer
	err := pageHeader.Execute(&buf, pageData{Title: title})
	if err == nil {
		err = body(&buf)
	}
	if err == nil {
		err = pageFooter.Execute(&buf, nil)
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to render page")
		httputil.WriteInternalError(w, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *AdminHandlers) logout(w http.ResponseWriter, r *http.Request) {
	tw := &trackingWriter{ResponseWriter: w}
	if err := h.gate.Logout(tw, r); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("provider logout failed")
		if !tw.wrote {
			httputil.WriteBadGateway(w, "identity provider logout failed")
		}
		return
	}

	if !tw.wrote {
		http.Redirect(w, r, httputil.LoginPath, http.StatusFound)
	}
}
