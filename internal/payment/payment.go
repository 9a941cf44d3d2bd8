// Package payment wraps the two hosted-checkout providers behind one
// interface. Each client owns its amount unit conversion, its success marker
// and its webhook signature scheme; nothing outside this package knows which
// provider wants minor units.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/KachiAlex/kex/internal/domain"
)

var ErrUnknownProvider = errors.New("unknown payment provider")

// Capabilities flags what a provider supports. Escrow-style settlement is
// intentionally per-provider; the lifecycle manager consults the flag instead
// of hardcoding provider names.
type Capabilities struct {
	Escrow bool
}

type InitializeRequest struct {
	Amount      domain.Amount
	Currency    string
	Email       string
	Reference   string
	CallbackURL string
}

type InitializeResult struct {
	AuthorizationURL  string
	ProviderReference string
}

type VerifyResult struct {
	Succeeded bool
	Raw       json.RawMessage
}

// WebhookEvent is the normalized payload of a provider notification.
type WebhookEvent struct {
	Reference string
	Succeeded bool
}

type Provider interface {
	Name() domain.PaymentProvider
	Capabilities() Capabilities
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	// VerifyWebhook checks the signature headers against the raw body. It
	// must be called before the body is parsed.
	VerifyWebhook(header http.Header, body []byte) bool
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

// ProviderError carries the raw provider response for diagnostics.
type ProviderError struct {
	Provider   domain.PaymentProvider
	StatusCode int
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, string(e.Body))
}
