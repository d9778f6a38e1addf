package crystalpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/gateway"
)

const defaultBaseURL = "https://api.crystalpay.io/v2"

type createRequest struct {
	AuthLogin  string  `json:"auth_login"`
	AuthSecret string  `json:"auth_secret"`
	Amount     float64 `json:"amount"`
	Type       string  `json:"type"`
	Lifetime   int     `json:"lifetime"`
}

type infoRequest struct {
	AuthLogin  string `json:"auth_login"`
	AuthSecret string `json:"auth_secret"`
	ID         string `json:"id"`
}

type invoiceResponse struct {
	Error  bool     `json:"error"`
	Errors []string `json:"errors"`
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	State  string   `json:"state"`
}

// Client — адаптер CrystalPay. Счёт выставляется сразу в рублях, конвертация
// не нужна; аутентификация — логином и секретом в теле каждого запроса.
type Client struct {
	httpClient *http.Client
	baseURL    string
	login      string
	secret     string
}

func NewClient(login, secret string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		login:   login,
		secret:  secret,
	}
}

func (c *Client) Name() string {
	return config.GatewayCrystalPay
}

func (c *Client) CreateInvoice(ctx context.Context, req gateway.CreateRequest) (*gateway.Invoice, error) {
	// CrystalPay измеряет lifetime в минутах.
	lifetime := int(config.PaymentTimeout().Minutes())
	if lifetime < 1 {
		lifetime = 1
	}

	var resp invoiceResponse
	err := c.call(ctx, "/invoice/create/", createRequest{
		AuthLogin:  c.login,
		AuthSecret: c.secret,
		Amount:     req.Amount,
		Type:       "purchase",
		Lifetime:   lifetime,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &gateway.Invoice{
		InvoiceID: resp.ID,
		PayURL:    resp.URL,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, ref gateway.Ref) (gateway.Status, error) {
	var resp invoiceResponse
	err := c.call(ctx, "/invoice/info/", infoRequest{
		AuthLogin:  c.login,
		AuthSecret: c.secret,
		ID:         ref.InvoiceID,
	}, &resp)
	if err != nil {
		return "", err
	}

	switch resp.State {
	case "payed":
		return gateway.StatusPaid, nil
	case "notpayed", "processing":
		return gateway.StatusPending, nil
	case "failed":
		return gateway.StatusCancelled, nil
	default:
		slog.Warn("unknown crystalpay invoice state", "state", resp.State)
		return gateway.StatusPending, nil
	}
}

func (c *Client) call(ctx context.Context, path string, payload any, out *invoiceResponse) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", gateway.ErrGatewayUnavailable, err)
	}

	if out.Error {
		return fmt.Errorf("%w: %v", gateway.ErrGatewayRejected, out.Errors)
	}

	return nil
}
