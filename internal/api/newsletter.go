package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/eduvox/eduvox/internal/newsletter"
	"github.com/go-chi/chi/v5"
)

// NewsletterHandler handles mailing-list signups.
type NewsletterHandler struct {
	client *newsletter.Client
}

// NewNewsletterHandler creates a new newsletter handler.
func NewNewsletterHandler(client *newsletter.Client) *NewsletterHandler {
	return &NewsletterHandler{client: client}
}

// RegisterRoutes registers newsletter routes.
func (h *NewsletterHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/newsletter", h.Subscribe)
}

type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe adds an address to the newsletter. Provider problems degrade
// to a friendly acceptance; only a bad address is an error.
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "please provide a valid email address")
		return
	}

	email := strings.TrimSpace(req.Email)
	if !newsletter.IsValidEmail(email) {
		Error(w, http.StatusBadRequest, "please provide a valid email address")
		return
	}

	var message string
	switch h.client.Subscribe(r.Context(), email) {
	case newsletter.OutcomeSubscribed:
		message = "Successfully subscribed! Welcome to the EduVox newsletter."
	case newsletter.OutcomeAlreadySubscribed:
		message = "You're already subscribed to our newsletter!"
	default:
		message = "Newsletter signup received! We'll add you once our email service is ready."
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": message,
		"email":   email,
	})
}
