package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/payment"
	"github.com/KachiAlex/kex/internal/repository"
)

// memOrderRepo is an in-memory OrderRepository with the same conditional
// transition semantics as the Mongo implementation.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	createErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (m *memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.orders[order.Reference]; ok {
		return repository.ErrDuplicateReference
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	m.orders[order.Reference] = &cp
	return nil
}

func (m *memOrderRepo) GetByReference(_ context.Context, reference string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[reference]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memOrderRepo) SetAuthorization(_ context.Context, reference, authorizationURL, providerReference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[reference]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.AuthorizationURL = authorizationURL
	order.ProviderReference = providerReference
	return nil
}

func (m *memOrderRepo) MarkPaid(_ context.Context, reference string, holdEscrow bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[reference]
	if !ok {
		return false, nil
	}
	transitioned := false
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusPaid
		transitioned = true
	}
	if holdEscrow && order.Status == domain.OrderStatusPaid && order.EscrowStatus == domain.EscrowStatusNone {
		order.EscrowStatus = domain.EscrowStatusHeld
	}
	return transitioned, nil
}

func (m *memOrderRepo) ReleaseEscrow(_ context.Context, reference string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[reference]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if order.EscrowStatus != domain.EscrowStatusHeld {
		return repository.ErrEscrowNotHeld
	}
	order.EscrowStatus = domain.EscrowStatusReleased
	order.EscrowReleasedAt = &at
	return nil
}

func (m *memOrderRepo) MarkExpired(_ context.Context, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[reference]
	if !ok || order.Status != domain.OrderStatusPending {
		return false, nil
	}
	order.Status = domain.OrderStatusExpired
	return true, nil
}

func (m *memOrderRepo) IncrementVerifyAttempts(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[reference]; ok {
		order.VerifyAttempts++
	}
	return nil
}

func (m *memOrderRepo) FindStalePending(_ context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, order := range m.orders {
		if order.Status == domain.OrderStatusPending && order.CreatedAt.Before(olderThan) {
			out = append(out, *order)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memOrderRepo) List(_ context.Context, email string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Order{}
	for _, order := range m.orders {
		if email == "" || order.CustomerEmail == email {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (m *memOrderRepo) Stats(_ context.Context, email string) (*domain.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.OrderStats{}
	for _, order := range m.orders {
		if email != "" && order.CustomerEmail != email {
			continue
		}
		stats.TotalOrders++
		if order.Status == domain.OrderStatusPaid {
			stats.PaidOrders++
			stats.TotalRevenue += order.Amount.Value
		}
	}
	return stats, nil
}

func (m *memOrderRepo) FrequentItems(_ context.Context, _ string, _ int) ([]domain.FrequentItem, error) {
	return []domain.FrequentItem{}, nil
}

func (m *memOrderRepo) CreateIndexes(context.Context) error { return nil }

// memOutbox records appended events in order.
type memOutbox struct {
	mu     sync.Mutex
	events []repository.OutboxEvent
}

func (m *memOutbox) Append(_ context.Context, aggregateID, eventType string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, repository.OutboxEvent{
		ID:          aggregateID + "/" + eventType,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *memOutbox) Unprocessed(_ context.Context, limit int) ([]repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.OutboxEvent
	for _, ev := range m.events {
		if !ev.Processed {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memOutbox) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Processed = true
		}
	}
	return nil
}

func (m *memOutbox) CreateIndexes(context.Context) error { return nil }

func (m *memOutbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// fakeProvider is a scriptable gateway.
type fakeProvider struct {
	name         domain.PaymentProvider
	escrow       bool
	initErr      error
	verifyErr    map[string]error
	verified     map[string]bool
	webhookValid bool
	webhookEvent *payment.WebhookEvent

	verifyCalls []string
}

func newFakeProvider(name domain.PaymentProvider, escrow bool) *fakeProvider {
	return &fakeProvider{
		name:         name,
		escrow:       escrow,
		verifyErr:    make(map[string]error),
		verified:     make(map[string]bool),
		webhookValid: true,
	}
}

func (f *fakeProvider) Name() domain.PaymentProvider { return f.name }

func (f *fakeProvider) Capabilities() payment.Capabilities {
	return payment.Capabilities{Escrow: f.escrow}
}

func (f *fakeProvider) Initialize(_ context.Context, req payment.InitializeRequest) (*payment.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &payment.InitializeResult{
		AuthorizationURL:  "https://checkout.test/" + req.Reference,
		ProviderReference: "prov_" + req.Reference,
	}, nil
}

func (f *fakeProvider) Verify(_ context.Context, reference string) (*payment.VerifyResult, error) {
	f.verifyCalls = append(f.verifyCalls, reference)
	if err, ok := f.verifyErr[reference]; ok {
		return nil, err
	}
	return &payment.VerifyResult{Succeeded: f.verified[reference]}, nil
}

func (f *fakeProvider) VerifyWebhook(http.Header, []byte) bool { return f.webhookValid }

func (f *fakeProvider) ParseWebhook([]byte) (*payment.WebhookEvent, error) {
	if f.webhookEvent == nil {
		return &payment.WebhookEvent{}, nil
	}
	return f.webhookEvent, nil
}
