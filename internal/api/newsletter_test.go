package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eduvox/eduvox/internal/config"
	"github.com/eduvox/eduvox/internal/newsletter"
	"github.com/go-chi/chi/v5"
)

func newNewsletterRouter(cfg config.NewsletterConfig) chi.Router {
	r := chi.NewRouter()
	NewNewsletterHandler(newsletter.NewClient(cfg)).RegisterRoutes(r)
	return r
}

func TestNewsletterSubscribe(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscribers" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer provider.Close()

	router := newNewsletterRouter(config.NewsletterConfig{APIKey: "test-key", BaseURL: provider.URL})

	body, _ := json.Marshal(map[string]string{"email": "student@example.com"})
	req := httptest.NewRequest("POST", "/api/newsletter", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.Contains(resp["message"], "Successfully subscribed") {
		t.Errorf("Expected subscribed message, got %q", resp["message"])
	}
	if resp["email"] != "student@example.com" {
		t.Errorf("Expected email echoed back, got %q", resp["email"])
	}
}

func TestNewsletterSubscribeInvalidEmail(t *testing.T) {
	router := newNewsletterRouter(config.NewsletterConfig{})

	for _, email := range []string{"", "not-an-email", "missing@tld"} {
		body, _ := json.Marshal(map[string]string{"email": email})
		req := httptest.NewRequest("POST", "/api/newsletter", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %q, got %d", email, w.Code)
		}
	}
}

func TestNewsletterSubscribeUnconfigured(t *testing.T) {
	router := newNewsletterRouter(config.NewsletterConfig{})

	body, _ := json.Marshal(map[string]string{"email": "student@example.com"})
	req := httptest.NewRequest("POST", "/api/newsletter", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.Contains(resp["message"], "signup received") {
		t.Errorf("Expected deferred message, got %q", resp["message"])
	}
}
