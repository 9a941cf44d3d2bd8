package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
)

const flutterwaveHashHeader = "verif-hash"

// Flutterwave bills in major units and reports success as "successful".
// Webhooks are authenticated with a shared secret echoed back verbatim in
// the verif-hash header. No escrow settlement.
type Flutterwave struct {
	baseURL     string
	webhookHash string
	client      *apiClient
}

type FlutterwaveConfig struct {
	BaseURL     string // defaults to the live API
	SecretKey   string
	WebhookHash string
	Timeout     time.Duration
}

func NewFlutterwave(cfg FlutterwaveConfig) *Flutterwave {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.flutterwave.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Flutterwave{
		baseURL:     cfg.BaseURL,
		webhookHash: cfg.WebhookHash,
		client:      newAPIClient(domain.ProviderFlutterwave, cfg.SecretKey, cfg.Timeout),
	}
}

func (f *Flutterwave) Name() domain.PaymentProvider { return domain.ProviderFlutterwave }

func (f *Flutterwave) Capabilities() Capabilities { return Capabilities{Escrow: false} }

type flutterwaveCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type flutterwaveInitRequest struct {
	Amount      float64             `json:"amount"` // major units
	Currency    string              `json:"currency"`
	TxRef       string              `json:"tx_ref"`
	RedirectURL string              `json:"redirect_url"`
	Customer    flutterwaveCustomer `json:"customer"`
}

type flutterwaveInitResponse struct {
	Status string `json:"status"`
	Data   struct {
		Link string `json:"link"`
	} `json:"data"`
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = "NGN"
	}
	body := flutterwaveInitRequest{
		Amount:      req.Amount.MajorUnits(),
		Currency:    currency,
		TxRef:       req.Reference,
		RedirectURL: req.CallbackURL,
		Customer: flutterwaveCustomer{
			Email: req.Email,
			Name:  nameFromEmail(req.Email),
		},
	}

	raw, err := f.client.do(ctx, http.MethodPost, f.baseURL+"/v3/payments", body)
	if err != nil {
		return nil, err
	}

	var resp flutterwaveInitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderFlutterwave, StatusCode: http.StatusOK, Body: raw}
	}
	if resp.Status != "success" || resp.Data.Link == "" {
		return nil, &ProviderError{Provider: domain.ProviderFlutterwave, StatusCode: http.StatusOK, Body: raw}
	}
	// Flutterwave keys the transaction by our tx_ref rather than assigning
	// its own lookup reference.
	return &InitializeResult{
		AuthorizationURL:  resp.Data.Link,
		ProviderReference: req.Reference,
	}, nil
}

type flutterwaveVerifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
	} `json:"data"`
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	endpoint := fmt.Sprintf("%s/v3/transactions/verify_by_reference?tx_ref=%s", f.baseURL, url.QueryEscape(reference))
	raw, err := f.client.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp flutterwaveVerifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderFlutterwave, StatusCode: http.StatusOK, Body: raw}
	}
	return &VerifyResult{
		Succeeded: resp.Data.Status == "successful",
		Raw:       raw,
	}, nil
}

func (f *Flutterwave) VerifyWebhook(header http.Header, _ []byte) bool {
	got := header.Get(flutterwaveHashHeader)
	if got == "" || f.webhookHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(f.webhookHash)) == 1
}

type flutterwaveWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

func (f *Flutterwave) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload flutterwaveWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse flutterwave webhook: %w", err)
	}
	return &WebhookEvent{
		Reference: payload.Data.TxRef,
		Succeeded: payload.Data.Status == "successful",
	}, nil
}

func nameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "Customer"
}
