package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/eduvox/eduvox/internal/companion"
	"github.com/go-chi/chi/v5"
	svix "github.com/svix/svix-webhooks/go"
)

const maxWebhookBody = 1 << 20

// WebhookHandler processes verified events from the identity provider.
type WebhookHandler struct {
	svc      *companion.Service
	verifier *svix.Webhook
}

// NewWebhookHandler creates a webhook handler. The secret is the signing
// key issued by the identity provider; when empty the endpoint rejects
// all deliveries rather than accepting them unverified.
func NewWebhookHandler(svc *companion.Service, secret string) (*WebhookHandler, error) {
	h := &WebhookHandler{svc: svc}
	if secret != "" {
		verifier, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, fmt.Errorf("create webhook verifier: %w", err)
		}
		h.verifier = verifier
	}
	return h, nil
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/webhooks/identity/user-deleted", h.UserDeleted)
}

type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type tableResult struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows_deleted"`
	OK    bool   `json:"ok"`
}

// UserDeleted cascade-deletes a removed user's rows across all tables.
// Each table is attempted independently; partial failure is logged and
// the delivery is still acknowledged.
func (h *WebhookHandler) UserDeleted(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		Error(w, http.StatusServiceUnavailable, "webhook secret not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header); err != nil {
		slog.Warn("Rejected webhook with bad signature", "error", err)
		Error(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	var evt identityEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		Error(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if evt.Type != "user.deleted" {
		JSON(w, http.StatusOK, map[string]string{"message": "event not handled"})
		return
	}
	if evt.Data.ID == "" {
		Error(w, http.StatusBadRequest, "no user id provided")
		return
	}

	slog.Info("Processing user deletion", "user_id", evt.Data.ID)

	results := h.svc.PurgeUserData(r.Context(), evt.Data.ID)
	out := make([]tableResult, 0, len(results))
	for _, res := range results {
		out = append(out, tableResult{Table: res.Table, Rows: res.Rows, OK: res.Err == nil})
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"message": "user data processed for deletion",
		"user_id": evt.Data.ID,
		"tables":  out,
	})
}
