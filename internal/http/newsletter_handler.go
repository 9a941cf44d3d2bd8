package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

type NewsletterHandler struct {
	repo    repository.NewsletterRepository
	timeout time.Duration
}

func NewNewsletterHandler(repo repository.NewsletterRepository, timeout time.Duration) *NewsletterHandler {
	return &NewsletterHandler{repo: repo, timeout: timeout}
}

type subscribeRequestDTO struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

// POST /api/newsletter/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req subscribeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if !domain.ValidEmail(email) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid email")
		return
	}

	source := req.Source
	if source == "" {
		source = "web"
	}

	if err := h.repo.Subscribe(ctx, email, source); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to subscribe")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
