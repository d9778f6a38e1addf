package gateway

import (
	"context"
	"errors"
)

// Status — приведённый статус счёта у платёжного шлюза. Каждый адаптер
// обязан отобразить все ответы своего API в эти четыре значения; незнакомый
// ответ трактуется как StatusPending, чтобы цикл сверки перепроверил счёт
// на следующем проходе.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrGatewayUnavailable — шлюз недоступен: сетевая ошибка, таймаут или
	// 5xx. Состояние счёта неизвестно, вызывающий должен повторить позже.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected — шлюз отказал в операции осмысленным ответом
	// (4xx, бизнес-ошибка). Повтор с теми же аргументами бесполезен.
	ErrGatewayRejected = errors.New("payment gateway rejected request")

	// ErrConversionUnavailable — не удалось получить курс для пересчёта
	// суммы в актив шлюза. Счёт не создан.
	ErrConversionUnavailable = errors.New("exchange rate unavailable")
)

// CreateRequest describes an invoice to be created at a gateway.
// Amount is in shop currency; the adapter converts it itself when
// the gateway is denominated in a crypto asset.
type CreateRequest struct {
	UserID int64
	Amount float64
	Asset  string
}

// Ref идентифицирует счёт у шлюза. InvoiceID — первичный ключ; PayloadID
// заполняется адаптерами, которые коррелируют оплату по своему payload.
type Ref struct {
	InvoiceID string
	PayloadID string
}

// Invoice — результат создания счёта у шлюза.
type Invoice struct {
	InvoiceID   string
	PayloadID   string
	PayURL      string
	Asset       string
	AssetAmount string
}

// Adapter — единый интерфейс платёжного шлюза. Реализации скрывают
// несовместимые API за двумя операциями.
type Adapter interface {
	Name() string
	CreateInvoice(ctx context.Context, req CreateRequest) (*Invoice, error)
	CheckStatus(ctx context.Context, ref Ref) (Status, error)
}
