// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"app_insights/internal/domain"
)

// Insights is the read side the API serves; *app.InsightsService implements it.
type Insights interface {
	ListApps(ctx context.Context, q domain.AppsQuery) ([]domain.AppView, error)
	GetApp(ctx context.Context, id string) (domain.AppView, error)
	Keywords(ctx context.Context, id string) (domain.KeywordSnapshot, error)
	SentimentTimeline(ctx context.Context, id string) ([]domain.SentimentPoint, error)
	Turnarounds(ctx context.Context, id string) ([]domain.Review, error)
}

type Handlers struct{ Q Insights }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/apps", func(r chi.Router) {
		r.Get("/", h.listApps)
		r.Get("/{id}", h.getApp)
		r.Get("/{id}/keywords", h.keywords)
		r.Get("/{id}/sentiment", h.sentiment)
		r.Get("/{id}/turnarounds", h.turnarounds)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors to problem responses. Upstream wins over
// not-found: a 404 from Discovery is a gateway problem, not a missing app.
func writeError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, domain.ErrUpstream):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", what+" temporarily unavailable")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "app not found")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeJSON sends v with a weak ETag, or 304 when the client already has it.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func (h *Handlers) listApps(w http.ResponseWriter, r *http.Request) {
	var q domain.AppsQuery
	if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
		q.Category = &c
	}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		q.Limit = l
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		o, err := strconv.Atoi(raw)
		if err != nil || o < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid offset", "offset must be a non-negative integer")
			return
		}
		q.Offset = o
	}

	out, err := h.Q.ListApps(r.Context(), q)
	if err != nil {
		writeError(w, r, "apps", err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) getApp(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.GetApp(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "app", err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) keywords(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Keywords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "keywords", err)
		return
	}
	if out.Stale {
		w.Header().Set("Warning", `110 - "stale keyword snapshot"`)
	}
	writeJSON(w, r, out)
}

func (h *Handlers) sentiment(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.SentimentTimeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "sentiment", err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) turnarounds(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Turnarounds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "turnarounds", err)
		return
	}
	writeJSON(w, r, out)
}
