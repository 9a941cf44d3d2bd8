package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KachiAlex/kex/internal/auth"
	"github.com/KachiAlex/kex/internal/cache"
	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/payment"
	"github.com/KachiAlex/kex/internal/repository"
	"github.com/KachiAlex/kex/internal/service"
)

const testPaystackSecret = "sk_test_handler"

// memOrderRepo mirrors the Mongo transition semantics in memory.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (m *memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memOrderRepo) FindStalePending(context.Context, time.Time, int) ([]domain.Order, error) {
	return nil, nil
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

func (m *memOrderRepo) FrequentItems(context.Context, string, int) ([]domain.FrequentItem, error) {
	return []domain.FrequentItem{}, nil
}

func (m *memOrderRepo) CreateIndexes(context.Context) error { return nil }

type memOutbox struct {
	mu     sync.Mutex
	events []repository.OutboxEvent
}

func (m *memOutbox) Append(_ context.Context, aggregateID, eventType string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, repository.OutboxEvent{AggregateID: aggregateID, EventType: eventType, Payload: payload})
	return nil
}

func (m *memOutbox) Unprocessed(context.Context, int) ([]repository.OutboxEvent, error) {
	return nil, nil
}

func (m *memOutbox) MarkProcessed(context.Context, string) error { return nil }

func (m *memOutbox) CreateIndexes(context.Context) error { return nil }

type memUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	nextID  int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]*domain.User)}
}

func (m *memUserRepo) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	m.nextID++
	user.ID = "u" + strconv.Itoa(m.nextID)
	cp := *user
	m.byEmail[user.Email] = &cp
	return nil
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byEmail[email]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byEmail {
		if user.ID == id {
			cp := *user
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUserRepo) UpdateProfile(_ context.Context, id string, fields map[string]any) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byEmail {
		if user.ID != id {
			continue
		}
		if v, ok := fields["name"].(string); ok {
			user.Name = v
		}
		if v, ok := fields["phone"].(string); ok {
			user.Phone = v
		}
		if v, ok := fields["avatar"].(string); ok {
			user.Avatar = v
		}
		cp := *user
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUserRepo) SetPasswordHash(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byEmail[email]; ok {
		user.PasswordHash = hash
		return nil
	}
	return repository.ErrUserNotFound
}

func (m *memUserRepo) CreateIndexes(context.Context) error { return nil }

type memProductRepo struct {
	mu       sync.Mutex
	products []domain.Product
}

func (m *memProductRepo) List(_ context.Context, _ domain.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product{}, m.products...), nil
}

func (m *memProductRepo) Featured(context.Context, int) ([]domain.Product, error) {
	return []domain.Product{}, nil
}

func (m *memProductRepo) Create(_ context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.ID = "p" + strconv.Itoa(len(m.products)+1)
	m.products = append(m.products, *product)
	return nil
}

func (m *memProductRepo) Update(_ context.Context, id string, _ map[string]any) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *memProductRepo) Delete(context.Context, string) error { return nil }

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]domain.Product, error) {
	return nil, cache.ErrCacheMiss
}

func (noopCache) Set(context.Context, string, []domain.Product) error { return nil }

func (noopCache) Delete(context.Context, ...string) error { return nil }

type memCategoryRepo struct {
	mu         sync.Mutex
	categories []domain.Category
}

func (m *memCategoryRepo) List(context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Category{}, m.categories...), nil
}

func (m *memCategoryRepo) Create(_ context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == category.Name {
			return repository.ErrCategoryExists
		}
	}
	category.ID = "c" + strconv.Itoa(len(m.categories)+1)
	m.categories = append(m.categories, *category)
	return nil
}

func (m *memCategoryRepo) Update(_ context.Context, id string, _ map[string]any) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == id {
			return &m.categories[i], nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

func (m *memCategoryRepo) CreateIndexes(context.Context) error { return nil }

type memTicketRepo struct {
	mu      sync.Mutex
	tickets []domain.Ticket
}

func (m *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets = append(m.tickets, *ticket)
	return nil
}

func (m *memTicketRepo) List(_ context.Context, email string) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Ticket{}
	for _, ticket := range m.tickets {
		if email == "" || ticket.Email == email {
			out = append(out, ticket)
		}
	}
	return out, nil
}

func (m *memTicketRepo) CreateIndexes(context.Context) error { return nil }

type memNewsletterRepo struct {
	mu     sync.Mutex
	emails map[string]bool
}

func (m *memNewsletterRepo) Subscribe(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emails == nil {
		m.emails = make(map[string]bool)
	}
	m.emails[email] = true
	return nil
}

func (m *memNewsletterRepo) CreateIndexes(context.Context) error { return nil }

// paystackBackend fakes the provider API behind the real gateway client.
type paystackBackend struct {
	mu   sync.Mutex
	paid map[string]bool
}

func newPaystackBackend() *paystackBackend {
	return &paystackBackend{paid: make(map[string]bool)}
}

func (b *paystackBackend) markPaid(reference string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paid[reference] = true
}

func (b *paystackBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/transaction/initialize":
		var req struct {
			Reference string `json:"reference"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.test/" + req.Reference,
				"reference":         req.Reference,
			},
		})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		reference := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		status := "abandoned"
		b.mu.Lock()
		if b.paid[reference] {
			status = "success"
		}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"status": status, "reference": reference},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type fixture struct {
	handler http.Handler
	orders  *memOrderRepo
	outbox  *memOutbox
	users   *memUserRepo
	backend *paystackBackend
	tokens  *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := newPaystackBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	paystack := payment.NewPaystack(payment.PaystackConfig{BaseURL: srv.URL, SecretKey: testPaystackSecret})
	flutterwave := payment.NewFlutterwave(payment.FlutterwaveConfig{BaseURL: srv.URL, SecretKey: "flw", WebhookHash: "flw-hash"})

	orders := newMemOrderRepo()
	outbox := &memOutbox{}
	users := newMemUserRepo()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	orderSvc := service.NewOrderService(orders, outbox, "https://shop.example.com", paystack, flutterwave)
	authSvc := service.NewAuthService(users, tokens)
	catalogSvc := service.NewCatalogService(&memProductRepo{}, noopCache{})

	timeout := 5 * time.Second
	handler := NewRouter(RouterConfig{
		Tokens:         tokens,
		Orders:         NewOrdersHandler(orderSvc, timeout),
		Auth:           NewAuthHandler(authSvc, nil, "https://shop.example.com", timeout),
		Products:       NewProductsHandler(catalogSvc, timeout),
		Categories:     NewCategoriesHandler(&memCategoryRepo{}, timeout),
		Tickets:        NewTicketsHandler(&memTicketRepo{}, timeout),
		Newsletter:     NewNewsletterHandler(&memNewsletterRepo{}, timeout),
		AllowedOrigins: []string{"*"},
		RateRPS:        1000,
		RateBurst:      1000,
	})

	return &fixture{
		handler: handler,
		orders:  orders,
		outbox:  outbox,
		users:   users,
		backend: backend,
		tokens:  tokens,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) tokenFor(t *testing.T, role domain.UserRole) string {
	t.Helper()
	user := &domain.User{Name: "Test", Email: string(role) + "@example.com", Role: role}
	require.NoError(t, f.users.Create(context.Background(), user))
	token, err := f.tokens.Issue(user)
	require.NoError(t, err)
	return token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func signPaystackBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testPaystackSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
