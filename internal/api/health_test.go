package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHealth(t *testing.T) {
	_, repo := newTestRouter(t)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var status struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected healthy status, got %s", status.Status)
	}
	if status.Checks["database"] != "ok" {
		t.Errorf("Expected database check ok, got %s", status.Checks["database"])
	}
}

func TestHealthDegraded(t *testing.T) {
	_, repo := newTestRouter(t)
	if err := repo.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 after closing the store, got %d", w.Code)
	}
}
