package lolz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/gateway"
)

const defaultBaseURL = "https://api.lzt.market"

type invoiceData struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	URL       string `json:"url"`
}

type invoiceResponse struct {
	Invoice *invoiceData `json:"invoice"`
	Errors  []string     `json:"errors"`
}

type createRequest struct {
	Amount     float64 `json:"amount"`
	PaymentID  string  `json:"payment_id"`
	Comment    string  `json:"comment"`
	URLSuccess string  `json:"url_success"`
	MerchantID int64   `json:"merchant_id"`
	Currency   string  `json:"currency"`
	Lifetime   int     `json:"lifetime"`
}

// Client — адаптер Lolzteam Market. Идентификатор счёта генерируем сами и
// передаём шлюзу как payment_id.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	merchantID int64
}

func NewClient(apiKey string, merchantID int64) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		merchantID: merchantID,
	}
}

func (c *Client) Name() string {
	return config.GatewayLolz
}

func (c *Client) CreateInvoice(ctx context.Context, req gateway.CreateRequest) (*gateway.Invoice, error) {
	paymentID := uuid.New().String()

	body := createRequest{
		Amount:     req.Amount,
		PaymentID:  paymentID,
		Comment:    fmt.Sprintf("Пополнение баланса, пользователь %d", req.UserID),
		URLSuccess: "https://lzt.market",
		MerchantID: c.merchantID,
		Currency:   "rub",
		Lifetime:   int(config.PaymentTimeout().Seconds()),
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/invoice", bytes.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	}

	var decoded invoiceResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", gateway.ErrGatewayUnavailable, err)
	}
	if decoded.Invoice == nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayRejected, decoded.Errors)
	}

	return &gateway.Invoice{
		InvoiceID: paymentID,
		PayURL:    decoded.Invoice.URL,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, ref gateway.Ref) (gateway.Status, error) {
	query := url.Values{}
	query.Set("payment_id", ref.InvoiceID)
	query.Set("merchant_id", strconv.FormatInt(c.merchantID, 10))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/invoice?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	// Свежесозданный счёт может какое-то время отдавать 404 — это ещё не
	// оплата и не отказ, просто ждём следующий проход.
	if resp.StatusCode == http.StatusNotFound {
		return gateway.StatusPending, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: status %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	}

	var decoded invoiceResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", gateway.ErrGatewayUnavailable, err)
	}
	if decoded.Invoice == nil {
		return gateway.StatusPending, nil
	}

	switch decoded.Invoice.Status {
	case "paid":
		return gateway.StatusPaid, nil
	case "not_paid":
		return gateway.StatusPending, nil
	case "expired":
		return gateway.StatusExpired, nil
	default:
		slog.Warn("unknown lolz invoice status", "status", decoded.Invoice.Status)
		return gateway.StatusPending, nil
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
