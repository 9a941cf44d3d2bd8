package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/payment"
	"github.com/KachiAlex/kex/internal/repository"
	"github.com/KachiAlex/kex/internal/service"
)

const maxWebhookBody = 1 << 20 // 1MB

type OrdersHandler struct {
	orders  *service.OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders *service.OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

// POST /api/orders/init
func (h *OrdersHandler) Init(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.InitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.orders.Init(ctx, req)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid order request", verr.Fields)
			return
		}
		var perr *payment.ProviderError
		if errors.As(err, &perr) {
			// the pending order was persisted; surface the provider payload
			// for diagnosis
			respondErrorDetails(w, http.StatusInternalServerError, "provider_error", "payment provider error", string(perr.Body))
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to initialize order")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GET /api/orders/verify/{reference}
func (h *OrdersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reference := chi.URLParam(r, "reference")
	paid, err := h.orders.Verify(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "verification_failed", "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"paid": paid})
}

// POST /api/orders/webhooks/{provider}
//
// Always acknowledges valid-signature deliveries with 200, even when the
// payload is unusable or the reference is unknown, so the provider stops
// redelivering.
func (h *OrdersHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unreadable body")
		return
	}

	provider := chi.URLParam(r, "provider")
	if err := h.orders.HandleWebhook(ctx, provider, r.Header, body); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// POST /api/orders/escrow/{reference}/release, admin only
func (h *OrdersHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reference := chi.URLParam(r, "reference")
	order, err := h.orders.ReleaseEscrow(ctx, reference)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			respondError(w, http.StatusNotFound, "not_found", "order not found")
		case errors.Is(err, repository.ErrEscrowNotHeld):
			respondError(w, http.StatusBadRequest, "escrow_not_held", "escrow is not held for this order")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to release escrow")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"escrowStatus":     order.EscrowStatus,
		"escrowReleasedAt": order.EscrowReleasedAt,
	})
}

// GET /api/orders?email=
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.List(ctx, r.URL.Query().Get("email"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/orders/stats?email=
func (h *OrdersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.orders.Stats(ctx, r.URL.Query().Get("email"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GET /api/orders/frequent?email=&limit=
func (h *OrdersHandler) Frequent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.orders.FrequentItems(ctx, r.URL.Query().Get("email"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch frequent products")
		return
	}
	respondJSON(w, http.StatusOK, items)
}
