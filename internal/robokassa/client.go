package robokassa

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/gateway"
)

const (
	productionURL = "https://auth.robokassa.ru/Merchant/Index.aspx"
	sandboxURL    = "https://test.robokassa.ru/Merchant/Index.aspx"
)

// Client формирует платёжные ссылки Robokassa. Сам Robokassa счёт не
// хранит: InvId придумываем мы, а оплату он подтверждает callback'ами.
type Client struct {
	merchantLogin string
	password1     string
	testMode      bool
}

func NewClient(merchantLogin, password1 string, testMode bool) *Client {
	return &Client{
		merchantLogin: merchantLogin,
		password1:     password1,
		testMode:      testMode,
	}
}

func (c *Client) Name() string {
	return config.GatewayRobokassa
}

// PaymentURL строит ссылку на оплату. Подпись считается основным паролем;
// дополнительные параметры уходят в URL с префиксом Shp_ и входят в подпись
// значениями в алфавитном порядке ключей.
func (c *Client) PaymentURL(amount float64, invoiceID string, description string, extraParams map[string]string) string {
	signature := CalculateSignature(c.merchantLogin, amount, invoiceID, c.password1, extraParams)

	params := url.Values{}
	params.Set("MerchantLogin", c.merchantLogin)
	params.Set("OutSum", formatAmount(amount))
	params.Set("InvId", invoiceID)
	params.Set("Description", description)
	params.Set("SignatureValue", signature)
	if c.testMode {
		params.Set("IsTest", "1")
	}
	for k, v := range extraParams {
		params.Set("Shp_"+k, v)
	}

	base := productionURL
	if c.testMode {
		base = sandboxURL
	}
	return base + "?" + params.Encode()
}

// CreateInvoice выставляет счёт. Robokassa не создаёт счёт на своей
// стороне: InvId генерируем сами (он обязан быть числовым), а ссылка на
// оплату детерминированно строится из подписи.
func (c *Client) CreateInvoice(_ context.Context, req gateway.CreateRequest) (*gateway.Invoice, error) {
	invoiceID, err := newInvoiceID()
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Пополнение баланса на %.2f ₽", req.Amount)
	extra := map[string]string{"user": strconv.FormatInt(req.UserID, 10)}

	return &gateway.Invoice{
		InvoiceID: invoiceID,
		PayURL:    c.PaymentURL(req.Amount, invoiceID, description, extra),
	}, nil
}

// CheckStatus у Robokassa всегда pending: оплату подтверждает только
// Result URL callback, а просрочку гасит цикл сверки по expires_at.
func (c *Client) CheckStatus(_ context.Context, _ gateway.Ref) (gateway.Status, error) {
	return gateway.StatusPending, nil
}

func newInvoiceID() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate invoice id: %w", err)
	}
	// InvId должен помещаться в int32 и не быть нулевым.
	id := binary.BigEndian.Uint32(buf[:])%2_000_000_000 + 1
	return strconv.FormatUint(uint64(id), 10), nil
}
