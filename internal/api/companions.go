package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eduvox/eduvox/internal/auth"
	"github.com/eduvox/eduvox/internal/companion"
	"github.com/eduvox/eduvox/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CompanionHandler handles companion, session, bookmark and usage
// endpoints.
type CompanionHandler struct {
	*Handler
}

// NewCompanionHandler creates a new companion handler.
func NewCompanionHandler(base *Handler) *CompanionHandler {
	return &CompanionHandler{Handler: base}
}

// RegisterRoutes registers companion routes.
func (h *CompanionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/companions", h.ListCompanions)
		r.Post("/companions", h.CreateCompanion)
		r.Get("/companions/popular", h.PopularCompanions)
		r.Get("/companions/{id}", h.GetCompanion)
		r.Post("/companions/{id}/bookmark", h.AddBookmark)
		r.Delete("/companions/{id}/bookmark", h.RemoveBookmark)
		r.Get("/bookmarks", h.ListBookmarks)
		r.Post("/sessions", h.StartSession)
		r.Get("/sessions/recent", h.RecentSessions)
		r.Get("/me/usage", h.Usage)
	})
}

// serviceError maps service failures to HTTP responses. Known conditions
// surface their message; everything else is a logged 500.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, companion.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, companion.ErrCompanionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, companion.ErrAlreadyBookmarked):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, companion.ErrCompanionLimitReached),
		errors.Is(err, companion.ErrMonthlyLimitReached):
		Error(w, http.StatusForbidden, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireUser rejects anonymous callers.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id := auth.FromContext(r.Context())
	if id.IsAnonymous() {
		Error(w, http.StatusUnauthorized, "authentication required")
		return id, false
	}
	return id, true
}

func companionFilterFromQuery(r *http.Request) domain.CompanionFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.CompanionFilter{
		Subject: q.Get("subject"),
		Topic:   q.Get("topic"),
		Page:    page,
		Limit:   limit,
	}
}

func limitFromQuery(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// ListCompanions returns the caller's companions, or the built-in catalog
// for anonymous visitors.
func (h *CompanionHandler) ListCompanions(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	companions, err := h.svc.ListCompanions(r.Context(), id, companionFilterFromQuery(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, companions)
}

// CreateCompanion creates a new companion for the caller.
func (h *CompanionHandler) CreateCompanion(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in companion.CreateCompanionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.CreateCompanion(r.Context(), id, in)
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

// PopularCompanions returns featured companions.
func (h *CompanionHandler) PopularCompanions(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	companions, err := h.svc.PopularCompanions(r.Context(), id, limitFromQuery(r, 3))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, companions)
}

// GetCompanion returns a single companion by id.
func (h *CompanionHandler) GetCompanion(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCompanion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, c)
}

// AddBookmark bookmarks a companion for the caller.
func (h *CompanionHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	b, err := h.svc.AddBookmark(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusCreated, b)
}

// RemoveBookmark removes the caller's bookmark for a companion.
// Idempotent: removing a bookmark that does not exist still succeeds.
func (h *CompanionHandler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveBookmark(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarks returns the caller's bookmarked companions.
func (h *CompanionHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	companions, err := h.svc.UserBookmarks(r.Context(), id.UserID, limitFromQuery(r, 10))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, companions)
}

type startSessionRequest struct {
	CompanionID string `json:"companion_id"`
}

// StartSession records a conversation with a companion.
func (h *CompanionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.svc.StartSession(r.Context(), id, req.CompanionID)
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusCreated, rec)
}

// RecentSessions returns the companions behind the caller's latest
// sessions.
func (h *CompanionHandler) RecentSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	companions, err := h.svc.RecentSessions(r.Context(), id.UserID, limitFromQuery(r, 10))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, companions)
}

// Usage returns the caller's quota position.
func (h *CompanionHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	JSON(w, http.StatusOK, h.svc.Usage(r.Context(), id))
}
