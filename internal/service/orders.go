package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/payment"
	"github.com/KachiAlex/kex/internal/repository"
)

const orderPaidEvent = "order.paid"

// OrderService orchestrates the order/payment lifecycle: initialization
// against a gateway, verification by poll and by webhook, escrow release,
// and read-side reporting.
type OrderService struct {
	repo      repository.OrderRepository
	outbox    repository.OutboxRepository
	providers map[domain.PaymentProvider]payment.Provider
	refPrefix string
	callback  string // client base URL for the post-payment redirect
}

func NewOrderService(repo repository.OrderRepository, outbox repository.OutboxRepository, callbackBase string, providers ...payment.Provider) *OrderService {
	byName := make(map[domain.PaymentProvider]payment.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &OrderService{
		repo:      repo,
		outbox:    outbox,
		providers: byName,
		refPrefix: "kex",
		callback:  strings.TrimRight(callbackBase, "/"),
	}
}

type InitOrderItem struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

type InitOrderRequest struct {
	Items         []InitOrderItem `json:"items"`
	Currency      string          `json:"currency"`
	CustomerEmail string          `json:"customerEmail"`
	Provider      string          `json:"provider"`
}

type InitOrderResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// Init validates the request, recomputes the amount server-side, persists a
// pending order and asks the chosen gateway for a hosted checkout URL. The
// order is NOT rolled back when the gateway call fails; it stays pending so
// verification can be retried later.
func (s *OrderService) Init(ctx context.Context, req InitOrderRequest) (*InitOrderResult, error) {
	items, verr := s.validateItems(req)
	if verr != nil {
		return nil, verr
	}

	providerName, err := domain.ParseProvider(req.Provider)
	if err != nil {
		var v domain.ValidationError
		v.Add("provider", "must be one of paystack, flutterwave")
		return nil, &v
	}
	provider, ok := s.providers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}

	currency := req.Currency
	if currency == "" {
		currency = "NGN"
	}

	order := &domain.Order{
		Reference:     s.newReference(),
		Items:         items,
		Amount:        domain.ComputeTotal(items),
		Currency:      currency,
		CustomerEmail: req.CustomerEmail,
		Provider:      providerName,
		Status:        domain.OrderStatusPending,
		EscrowStatus:  domain.EscrowStatusNone,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	init, err := provider.Initialize(ctx, payment.InitializeRequest{
		Amount:      order.Amount,
		Currency:    order.Currency,
		Email:       order.CustomerEmail,
		Reference:   order.Reference,
		CallbackURL: fmt.Sprintf("%s/checkout/callback?ref=%s", s.callback, order.Reference),
	})
	if err != nil {
		// order stays pending and retryable
		log.Printf("gateway initialize failed for %s: %v", order.Reference, err)
		return nil, err
	}

	if err := s.repo.SetAuthorization(ctx, order.Reference, init.AuthorizationURL, init.ProviderReference); err != nil {
		log.Printf("failed to store authorization for %s: %v", order.Reference, err)
	}

	return &InitOrderResult{
		Reference:        order.Reference,
		AuthorizationURL: init.AuthorizationURL,
	}, nil
}

func (s *OrderService) validateItems(req InitOrderRequest) ([]domain.OrderItem, *domain.ValidationError) {
	var verr domain.ValidationError
	if len(req.Items) == 0 {
		verr.Add("items", "must contain at least one item")
	}
	if !domain.ValidEmail(req.CustomerEmail) {
		verr.Add("customerEmail", "must be a valid email address")
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		item, itemErr := domain.NewOrderItem(it.ProductID, it.Name, it.Price, it.Quantity, it.Image)
		if itemErr != nil {
			for _, f := range itemErr.Fields {
				verr.Add(fmt.Sprintf("items[%d].%s", i, f.Field), f.Message)
			}
			continue
		}
		items = append(items, item)
	}

	if verr.HasErrors() {
		return nil, &verr
	}
	return items, nil
}

// newReference builds the idempotency key from a random component plus a
// time component, so collisions are negligible even across restarts.
func (s *OrderService) newReference() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%s_%s%06d", s.refPrefix, random, time.Now().UnixMilli()%1_000_000)
}

// Verify asks the provider whether the referenced transaction succeeded and
// applies the paid transition when it did. Re-verifying an already-paid order
// is a no-op that still reports paid=true.
func (s *OrderService) Verify(ctx context.Context, reference string) (bool, error) {
	order, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return false, err
	}
	if order.Status == domain.OrderStatusPaid {
		return true, nil
	}

	provider, ok := s.providers[order.Provider]
	if !ok {
		return false, ErrUnknownProvider
	}

	result, err := provider.Verify(ctx, order.Reference)
	if err != nil && order.ProviderReference != "" && order.ProviderReference != order.Reference {
		// Providers sometimes echo back their own transaction id instead of
		// the one we submitted; retry with it.
		result, err = provider.Verify(ctx, order.ProviderReference)
	}
	if err != nil {
		log.Printf("verification failed for %s: %v", reference, err)
		return false, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if result.Succeeded {
		s.applyPaid(ctx, order, provider)
	}
	return result.Succeeded, nil
}

// applyPaid performs the idempotent, monotonic paid transition and records
// the outbox event when this call actually transitioned the order.
func (s *OrderService) applyPaid(ctx context.Context, order *domain.Order, provider payment.Provider) {
	transitioned, err := s.repo.MarkPaid(ctx, order.Reference, provider.Capabilities().Escrow)
	if err != nil {
		log.Printf("failed to mark %s paid: %v", order.Reference, err)
		return
	}
	if !transitioned {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"reference":      order.Reference,
		"amount":         order.Amount,
		"currency":       order.Currency,
		"customer_email": order.CustomerEmail,
		"provider":       order.Provider,
	})
	if err != nil {
		log.Printf("failed to marshal order event for %s: %v", order.Reference, err)
		return
	}
	if err := s.outbox.Append(ctx, order.Reference, orderPaidEvent, payload); err != nil {
		// the order is paid either way; the event is best-effort and can be
		// reconstructed from the orders collection
		log.Printf("failed to append outbox event for %s: %v", order.Reference, err)
	}
}

// HandleWebhook processes an asynchronous provider notification. The
// signature is checked against the raw body before anything is parsed.
// Unknown references and non-success events are acknowledged and ignored.
func (s *OrderService) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	name, err := domain.ParseProvider(providerName)
	if err != nil {
		return ErrUnknownProvider
	}
	provider, ok := s.providers[name]
	if !ok {
		return ErrUnknownProvider
	}

	if !provider.VerifyWebhook(header, body) {
		return ErrWebhookSignature
	}

	event, err := provider.ParseWebhook(body)
	if err != nil {
		log.Printf("unparseable %s webhook: %v", name, err)
		return nil // acknowledged, nothing to do
	}
	if !event.Succeeded || event.Reference == "" {
		return nil
	}

	order, err := s.repo.GetByReference(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			// May not exist yet due to a network race, or may belong to a
			// different environment. Acknowledge so the provider stops
			// redelivering.
			log.Printf("webhook for unknown reference %s ignored", event.Reference)
			return nil
		}
		log.Printf("webhook lookup failed for %s: %v", event.Reference, err)
		return nil
	}

	s.applyPaid(ctx, order, provider)
	return nil
}

// ReleaseEscrow moves held funds to released. Admin-gated at the HTTP layer;
// this is the only way escrow reaches its terminal state.
func (s *OrderService) ReleaseEscrow(ctx context.Context, reference string) (*domain.Order, error) {
	if err := s.repo.ReleaseEscrow(ctx, reference, time.Now()); err != nil {
		return nil, err
	}
	return s.repo.GetByReference(ctx, reference)
}

func (s *OrderService) List(ctx context.Context, email string) ([]domain.Order, error) {
	return s.repo.List(ctx, email)
}

func (s *OrderService) Stats(ctx context.Context, email string) (*domain.OrderStats, error) {
	return s.repo.Stats(ctx, email)
}

func (s *OrderService) FrequentItems(ctx context.Context, email string, limit int) ([]domain.FrequentItem, error) {
	if limit < 1 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}
	return s.repo.FrequentItems(ctx, email, limit)
}
