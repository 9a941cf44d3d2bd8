package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KachiAlex/kex/internal/domain"
)

// apiClient is the shared HTTP plumbing for both providers: bearer auth,
// JSON bodies, a circuit breaker around every call, and ProviderError for
// any non-2xx or unreadable response.
type apiClient struct {
	provider   domain.PaymentProvider
	secret     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func newAPIClient(provider domain.PaymentProvider, secret string, timeout time.Duration) *apiClient {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    string(provider),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &apiClient{
		provider: provider,
		secret:   secret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
	}
}

func (c *apiClient) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("marshal %s request: %w", c.provider, err)
			}
			body = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", c.provider, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.secret)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", c.provider, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Body: raw}
		}
		return raw, nil
	})
}
