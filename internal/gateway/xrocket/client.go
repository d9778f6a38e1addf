package xrocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"stars-tg-shop-bot/internal/cache"
	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/gateway"
)

const (
	defaultBaseURL  = "https://pay.xrocket.io"
	coingeckoURL    = "https://api.coingecko.com/api/v3/simple/price?ids=the-open-network&vs_currencies=rub"
	invoiceCurrency = "TONCOIN"
)

// fallbackTonRate используется, когда CoinGecko недоступен: лучше выставить
// счёт по консервативному курсу, чем отказать вовсе.
var fallbackTonRate = decimal.NewFromFloat(320.0)

// Client — адаптер xRocket. Счета номинируются в TON; курс TON/RUB берётся
// у CoinGecko, самого xRocket курсы не интересуют.
type Client struct {
	httpClient *http.Client
	baseURL    string
	rateURL    string
	apiKey     string
	rates      *cache.RateCache
}

func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		rateURL: coingeckoURL,
		apiKey:  apiKey,
		rates:   cache.NewRateCache(5 * time.Minute),
	}
}

func (c *Client) Name() string {
	return config.GatewayXRocket
}

func (c *Client) CreateInvoice(ctx context.Context, req gateway.CreateRequest) (*gateway.Invoice, error) {
	rate := c.tonRate(ctx)

	tonAmount := decimal.NewFromFloat(req.Amount).Div(rate).Round(6)
	if !tonAmount.IsPositive() {
		return nil, fmt.Errorf("amount %f converts to zero TON: %w", req.Amount, gateway.ErrGatewayRejected)
	}
	amount, _ := tonAmount.Float64()

	body := createInvoiceRequest{
		Amount:      amount,
		Currency:    invoiceCurrency,
		Description: fmt.Sprintf("Пополнение баланса на %.2f ₽", req.Amount),
		Payload:     strconv.FormatInt(req.UserID, 10),
		ExpiredIn:   int(config.PaymentTimeout().Seconds()),
	}

	var created tgInvoice
	if err := c.call(ctx, "POST", "/tg-invoices", body, &created); err != nil {
		return nil, err
	}

	return &gateway.Invoice{
		InvoiceID:   strconv.FormatInt(created.ID, 10),
		PayURL:      created.Link,
		Asset:       "TON",
		AssetAmount: tonAmount.String(),
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, ref gateway.Ref) (gateway.Status, error) {
	var inv tgInvoice
	if err := c.call(ctx, "GET", "/tg-invoices/"+ref.InvoiceID, nil, &inv); err != nil {
		return "", err
	}

	// xRocket не всегда переводит счёт в терминальный статус сразу после
	// оплаты: непустой payments — самый надёжный признак.
	if len(inv.Payments) > 0 {
		return gateway.StatusPaid, nil
	}

	switch inv.Status {
	case "active":
		return gateway.StatusPending, nil
	case "paid":
		return gateway.StatusPaid, nil
	case "expired":
		return gateway.StatusExpired, nil
	default:
		slog.Warn("unknown xrocket invoice status", "status", inv.Status)
		return gateway.StatusPending, nil
	}
}

// tonRate возвращает курс TON/RUB, при недоступности источника — запасной.
func (c *Client) tonRate(ctx context.Context) decimal.Decimal {
	if rate, ok := c.rates.Get("TON"); ok {
		return rate
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.rateURL, nil)
	if err != nil {
		return fallbackTonRate
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("coingecko unavailable, using fallback TON rate", "error", err)
		return fallbackTonRate
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("coingecko returned error, using fallback TON rate", "status", resp.StatusCode)
		return fallbackTonRate
	}

	var price coingeckoPrice
	if err = json.NewDecoder(resp.Body).Decode(&price); err != nil || price.TheOpenNetwork.Rub <= 0 {
		return fallbackTonRate
	}

	rate := decimal.NewFromFloat(price.TheOpenNetwork.Rub)
	c.rates.Set("TON", rate)
	return rate
}

func (c *Client) call(ctx context.Context, method, path string, payload any, out any) error {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Rocket-Pay-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", gateway.ErrGatewayUnavailable, resp.StatusCode)
	}

	var envelope apiResponse[json.RawMessage]
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", gateway.ErrGatewayUnavailable, err)
	}

	if !envelope.Success {
		return fmt.Errorf("%w: %s", gateway.ErrGatewayRejected, envelope.Message)
	}

	if out != nil {
		if err = json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}

	return nil
}
