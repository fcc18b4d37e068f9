package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/keyhole/pkg/httputil"
	"github.com/platinummonkey/keyhole/pkg/middleware"
	"github.com/platinummonkey/keyhole/pkg/observability"
	"github.com/platinummonkey/keyhole/pkg/storage"
)

// SubmissionRequest is the body of POST /api/submissions
type SubmissionRequest struct {
	URL string `json:"url"`
}

// SubmissionResponse acknowledges an accepted submission
type SubmissionResponse struct {
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmissionHandlers serves the flood-guarded write path
type SubmissionHandlers struct {
	guard   *middleware.FloodGuard
	history storage.HistoryStore
	now     func() time.Time
}

// NewSubmissionHandlers creates submission handlers
func NewSubmissionHandlers(guard *middleware.FloodGuard, history storage.HistoryStore, now func() time.Time) *SubmissionHandlers {
	if now == nil {
		now = time.Now
	}
	return &SubmissionHandlers{guard: guard, history: history, now: now}
}

// RegisterRoutes registers submission routes on a router mounted at /api
func (h *SubmissionHandlers) RegisterRoutes(r *mux.Router) {
	r.Handle("/submissions", h.guard.Handler(http.HandlerFunc(h.create))).Methods(http.MethodPost)
}

func (h *SubmissionHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := validateSubmissionURL(req.URL); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	rec := storage.FloodRecord{
		SourceAddress: h.guard.SourceAddress(r),
		Timestamp:     h.now(),
	}
	if err := h.history.Record(r.Context(), rec); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to record submission")
		httputil.WriteInternalError(w, "failed to record submission")
		return
	}

	_ = httputil.WriteCreated(w, SubmissionResponse{
		URL:       req.URL,
		CreatedAt: rec.Timestamp.UTC(),
	})
}

var (
	errURLRequired = errors.New("url is required")
	errURLInvalid  = errors.New("url is not valid")
	errURLScheme   = errors.New("url must use http or https")
)

func validateSubmissionURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errURLInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errURLScheme
	}
	return nil
}
