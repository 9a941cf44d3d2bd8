package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

type TicketsHandler struct {
	repo    repository.TicketRepository
	timeout time.Duration
}

func NewTicketsHandler(repo repository.TicketRepository, timeout time.Duration) *TicketsHandler {
	return &TicketsHandler{repo: repo, timeout: timeout}
}

type ticketRequestDTO struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// POST /api/tickets
func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ticketRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ticket, verr := domain.NewTicket(req.Email, req.Subject, req.Message)
	if verr != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid ticket payload", verr.Fields)
		return
	}

	if err := h.repo.Create(ctx, ticket); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create ticket")
		return
	}
	respondJSON(w, http.StatusOK, ticket)
}

// GET /api/tickets?email=
func (h *TicketsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tickets, err := h.repo.List(ctx, r.URL.Query().Get("email"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch tickets")
		return
	}
	respondJSON(w, http.StatusOK, tickets)
}
