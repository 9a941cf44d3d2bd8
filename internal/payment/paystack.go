package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
)

const paystackSignatureHeader = "X-Paystack-Signature"

// Paystack bills in minor units (kobo) and reports success as "success".
// It is the escrow-capable provider: a confirmed charge lands in held
// settlement until an admin releases it.
type Paystack struct {
	baseURL string
	client  *apiClient
}

type PaystackConfig struct {
	BaseURL   string // defaults to the live API
	SecretKey string
	Timeout   time.Duration
}

func NewPaystack(cfg PaystackConfig) *Paystack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Paystack{
		baseURL: cfg.BaseURL,
		client:  newAPIClient(domain.ProviderPaystack, cfg.SecretKey, cfg.Timeout),
	}
}

func (p *Paystack) Name() domain.PaymentProvider { return domain.ProviderPaystack }

func (p *Paystack) Capabilities() Capabilities { return Capabilities{Escrow: true} }

type paystackInitRequest struct {
	Amount      int64  `json:"amount"` // minor units
	Email       string `json:"email"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url"`
}

type paystackInitResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	// The one and only major->minor conversion for this provider.
	body := paystackInitRequest{
		Amount:      req.Amount.MinorUnits(),
		Email:       req.Email,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
	}

	raw, err := p.client.do(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var resp paystackInitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderPaystack, StatusCode: http.StatusOK, Body: raw}
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, &ProviderError{Provider: domain.ProviderPaystack, StatusCode: http.StatusOK, Body: raw}
	}
	return &InitializeResult{
		AuthorizationURL:  resp.Data.AuthorizationURL,
		ProviderReference: resp.Data.Reference,
	}, nil
}

type paystackVerifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	} `json:"data"`
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	raw, err := p.client.do(ctx, http.MethodGet, fmt.Sprintf("%s/transaction/verify/%s", p.baseURL, reference), nil)
	if err != nil {
		return nil, err
	}

	var resp paystackVerifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderPaystack, StatusCode: http.StatusOK, Body: raw}
	}
	return &VerifyResult{
		Succeeded: resp.Data.Status == "success",
		Raw:       raw,
	}, nil
}

// VerifyWebhook checks the hex HMAC-SHA512 of the raw body against the
// signature header, using the API secret as the key.
func (p *Paystack) VerifyWebhook(header http.Header, body []byte) bool {
	signature := header.Get(paystackSignatureHeader)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.client.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type paystackWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (p *Paystack) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload paystackWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse paystack webhook: %w", err)
	}
	return &WebhookEvent{
		Reference: payload.Data.Reference,
		Succeeded: payload.Event == "charge.success" || payload.Data.Status == "success",
	}, nil
}
