package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultClientTimeout = 15 * time.Second

// Client talks to the processor's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Processor = (*Client)(nil)

// NewClient wires a processor client. A nil httpClient gets a default with
// a request timeout.
func NewClient(baseURL string, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance_cents"`
}

type transitResponse struct {
	// Amount is in whole currency units, as the processor reports it.
	Amount decimal.Decimal `json:"amount"`
}

// CurrentBalanceCents fetches the live settlement-account balance.
func (client *Client) CurrentBalanceCents(ctx context.Context) (int64, error) {
	var response balanceResponse
	if err := client.getJSON(ctx, "/v1/balance", &response); err != nil {
		return 0, err
	}
	return response.BalanceCents, nil
}

// TopupAmountInTransit fetches the pending top-up amount.
func (client *Client) TopupAmountInTransit(ctx context.Context) (decimal.Decimal, error) {
	var response transitResponse
	if err := client.getJSON(ctx, "/v1/topups/in-transit", &response); err != nil {
		return decimal.Zero, err
	}
	return response.Amount, nil
}

func (client *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build processor request %s: %w", path, err)
	}
	request.Header.Set("Authorization", "Bearer "+client.apiKey)
	request.Header.Set("Accept", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("processor request %s: %w", path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("processor request %s: unexpected status %d", path, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode processor response %s: %w", path, err)
	}
	return nil
}
