package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KachiAlex/kex/internal/domain"
)

const flutterwaveTestHash = "whsec_shared"

func newTestFlutterwave(t *testing.T, handler http.Handler) *Flutterwave {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFlutterwave(FlutterwaveConfig{
		BaseURL:     srv.URL,
		SecretKey:   "FLWSECK_TEST-xyz",
		WebhookHash: flutterwaveTestHash,
	})
}

func TestFlutterwave_Initialize(t *testing.T) {
	var got flutterwaveInitRequest
	f := newTestFlutterwave(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/payments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"link": "https://checkout.flutterwave.com/pay/xyz"},
		})
	}))

	res, err := f.Initialize(context.Background(), InitializeRequest{
		Amount:      domain.Amount{Value: 200, Unit: domain.UnitMajor},
		Currency:    "NGN",
		Email:       "jane@example.com",
		Reference:   "kex_deadbeef42",
		CallbackURL: "https://shop.example.com/checkout/callback?ref=kex_deadbeef42",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/pay/xyz", res.AuthorizationURL)
	// Flutterwave keys transactions by our reference
	assert.Equal(t, "kex_deadbeef42", res.ProviderReference)
	// amount stays in major units: 200, never 20000
	assert.Equal(t, 200.0, got.Amount)
	assert.Equal(t, "kex_deadbeef42", got.TxRef)
	assert.Equal(t, "jane@example.com", got.Customer.Email)
}

func TestFlutterwave_Initialize_DefaultCurrency(t *testing.T) {
	var got flutterwaveInitRequest
	f := newTestFlutterwave(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"link": "https://checkout.flutterwave.com/pay/xyz"},
		})
	}))

	_, err := f.Initialize(context.Background(), InitializeRequest{
		Amount:    domain.Amount{Value: 10, Unit: domain.UnitMajor},
		Email:     "jane@example.com",
		Reference: "kex_x",
	})

	require.NoError(t, err)
	assert.Equal(t, "NGN", got.Currency)
}

func TestFlutterwave_Initialize_Rejected(t *testing.T) {
	f := newTestFlutterwave(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "invalid currency"})
	}))

	_, err := f.Initialize(context.Background(), InitializeRequest{
		Amount:    domain.Amount{Value: 10, Unit: domain.UnitMajor},
		Email:     "jane@example.com",
		Reference: "kex_x",
	})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ProviderFlutterwave, perr.Provider)
}

func TestFlutterwave_Verify(t *testing.T) {
	tests := []struct {
		name      string
		txStatus  string
		succeeded bool
	}{
		{name: "successful", txStatus: "successful", succeeded: true},
		{name: "failed", txStatus: "failed", succeeded: false},
		// the other provider's marker must not be accepted
		{name: "success is not successful", txStatus: "success", succeeded: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFlutterwave(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v3/transactions/verify_by_reference", r.URL.Path)
				assert.Equal(t, "kex_abc", r.URL.Query().Get("tx_ref"))
				json.NewEncoder(w).Encode(map[string]any{
					"status": "success",
					"data":   map[string]any{"status": tt.txStatus, "tx_ref": "kex_abc"},
				})
			}))

			res, err := f.Verify(context.Background(), "kex_abc")

			require.NoError(t, err)
			assert.Equal(t, tt.succeeded, res.Succeeded)
		})
	}
}

func TestFlutterwave_VerifyWebhook(t *testing.T) {
	f := NewFlutterwave(FlutterwaveConfig{SecretKey: "sk", WebhookHash: flutterwaveTestHash})
	body := []byte(`{"event":"charge.completed"}`)

	header := http.Header{}
	header.Set("verif-hash", flutterwaveTestHash)
	assert.True(t, f.VerifyWebhook(header, body))

	header.Set("verif-hash", "wrong")
	assert.False(t, f.VerifyWebhook(header, body))

	assert.False(t, f.VerifyWebhook(http.Header{}, body))
}

func TestFlutterwave_VerifyWebhook_NoConfiguredHash(t *testing.T) {
	// an unset shared secret rejects everything rather than matching ""
	f := NewFlutterwave(FlutterwaveConfig{SecretKey: "sk"})
	header := http.Header{}
	header.Set("verif-hash", "")
	assert.False(t, f.VerifyWebhook(header, nil))
}

func TestFlutterwave_ParseWebhook(t *testing.T) {
	f := NewFlutterwave(FlutterwaveConfig{SecretKey: "sk", WebhookHash: flutterwaveTestHash})

	ev, err := f.ParseWebhook([]byte(`{"event":"charge.completed","data":{"tx_ref":"kex_abc","status":"successful"}}`))
	require.NoError(t, err)
	assert.Equal(t, "kex_abc", ev.Reference)
	assert.True(t, ev.Succeeded)

	ev, err = f.ParseWebhook([]byte(`{"event":"charge.completed","data":{"tx_ref":"kex_abc","status":"failed"}}`))
	require.NoError(t, err)
	assert.False(t, ev.Succeeded)
}

func TestNameFromEmail(t *testing.T) {
	assert.Equal(t, "jane", nameFromEmail("jane@example.com"))
	assert.Equal(t, "Customer", nameFromEmail("nonsense"))
	assert.Equal(t, "Customer", nameFromEmail("@example.com"))
}
