package cryptobot

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"stars-tg-shop-bot/internal/cache"
	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/gateway"
)

const defaultBaseURL = "https://pay.crypt.bot/api"

// assetPrecision — число знаков после запятой для суммы в каждом активе.
// Crypto Pay отвергает счета с избыточной точностью.
var assetPrecision = map[string]int32{
	"BTC":  8,
	"ETH":  6,
	"USDT": 2,
	"USDC": 2,
	"TON":  4,
	"SOL":  6,
	"BNB":  4,
	"TRX":  2,
	"LTC":  6,
	"DOGE": 4,
}

func precisionFor(asset string) int32 {
	if p, ok := assetPrecision[asset]; ok {
		return p
	}
	return 4
}

// Client — адаптер Crypto Pay (@CryptoBot). Счёт выставляется в
// криптоактиве, сумма пересчитывается из валюты магазина по курсу самого
// шлюза. Курсы кэшируются, чтобы не ходить за ними на каждый счёт.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	rates      *cache.RateCache
}

func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		token:   token,
		rates:   cache.NewRateCache(5 * time.Minute),
	}
}

func (c *Client) Name() string {
	return config.GatewayCryptoBot
}

// SupportedAssets возвращает настроенные активы, для которых у Crypto Pay
// сейчас есть курс к рублю. Актив без курса счёт всё равно не выставит.
func (c *Client) SupportedAssets(ctx context.Context) ([]string, error) {
	if err := c.refreshRates(ctx); err != nil {
		return nil, err
	}

	var assets []string
	for _, asset := range config.CryptoBotAssets() {
		if _, ok := c.rates.Get(asset); ok {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req gateway.CreateRequest) (*gateway.Invoice, error) {
	asset := req.Asset
	if asset == "" {
		asset = "USDT"
	}

	rate, err := c.exchangeRate(ctx, asset)
	if err != nil {
		return nil, err
	}

	assetAmount := decimal.NewFromFloat(req.Amount).Div(rate).Round(precisionFor(asset))
	if !assetAmount.IsPositive() {
		return nil, fmt.Errorf("amount %f converts to zero %s: %w", req.Amount, asset, gateway.ErrGatewayRejected)
	}

	payload, err := newPayload()
	if err != nil {
		return nil, err
	}

	var created invoice
	err = c.call(ctx, "createInvoice", createInvoiceRequest{
		Asset:     asset,
		Amount:    assetAmount.String(),
		Payload:   payload,
		ExpiresIn: int(config.PaymentTimeout().Seconds()),
	}, &created)
	if err != nil {
		return nil, err
	}

	return &gateway.Invoice{
		InvoiceID:   strconv.FormatInt(created.InvoiceID, 10),
		PayloadID:   payload,
		PayURL:      created.PayURL,
		Asset:       asset,
		AssetAmount: assetAmount.String(),
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, ref gateway.Ref) (gateway.Status, error) {
	var result invoicesResult
	err := c.call(ctx, "getInvoices", map[string]string{
		"invoice_ids": ref.InvoiceID,
	}, &result)
	if err != nil {
		return "", err
	}

	if len(result.Items) == 0 {
		return gateway.StatusPending, nil
	}

	return mapStatus(result.Items[0].Status), nil
}

// mapStatus maps the Crypto Pay invoice status onto the common one.
// Anything unknown stays pending so the checker retries it.
func mapStatus(status string) gateway.Status {
	switch status {
	case "paid":
		return gateway.StatusPaid
	case "active":
		return gateway.StatusPending
	case "expired":
		return gateway.StatusExpired
	default:
		slog.Warn("unknown cryptobot invoice status", "status", status)
		return gateway.StatusPending
	}
}

func (c *Client) exchangeRate(ctx context.Context, asset string) (decimal.Decimal, error) {
	if rate, ok := c.rates.Get(asset); ok {
		return rate, nil
	}

	if err := c.refreshRates(ctx); err != nil {
		return decimal.Zero, err
	}

	rate, ok := c.rates.Get(asset)
	if !ok {
		return decimal.Zero, fmt.Errorf("no RUB rate for %s: %w", asset, gateway.ErrConversionUnavailable)
	}
	return rate, nil
}

func (c *Client) refreshRates(ctx context.Context) error {
	var rates []exchangeRate
	if err := c.call(ctx, "getExchangeRates", nil, &rates); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrConversionUnavailable, err)
	}

	for _, r := range rates {
		if !r.IsValid || r.Target != "RUB" {
			continue
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil || !rate.IsPositive() {
			continue
		}
		c.rates.Set(r.Source, rate)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, method)
	if err != nil {
		return err
	}

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

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

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

	if !envelope.Ok {
		if envelope.Error != nil {
			return fmt.Errorf("%w: %s (code %d)", gateway.ErrGatewayRejected, envelope.Error.Name, envelope.Error.Code)
		}
		return fmt.Errorf("%w: status %d", gateway.ErrGatewayRejected, resp.StatusCode)
	}

	if out != nil {
		if err = json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}

	return nil
}

func newPayload() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate payload: %w", err)
	}
	return "cryptobot_" + hex.EncodeToString(buf), nil
}
