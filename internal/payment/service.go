package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/internal/gateway"
)

var (
	// ErrAmountTooSmall — сумма меньше минимального пополнения.
	ErrAmountTooSmall = errors.New("payment amount is below the minimum")

	// ErrGatewayDisabled — шлюз не настроен или выключен.
	ErrGatewayDisabled = errors.New("payment gateway is disabled")

	// ErrActiveInvoiceExists — у пользователя уже есть неоплаченный счёт.
	ErrActiveInvoiceExists = errors.New("user already has an active invoice")
)

// Ledger — операции со счетами, нужные платёжному сервису и циклу сверки.
type Ledger interface {
	Create(ctx context.Context, invoice *database.Invoice) (int64, error)
	FindPending(ctx context.Context) ([]database.Invoice, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*database.Invoice, error)
	FindActiveByUser(ctx context.Context, userID int64, now time.Time) (*database.Invoice, error)
	UpdateMessageRef(ctx context.Context, invoiceID string, messageID int, chatID int64) error
	MarkExpired(ctx context.Context, invoiceID string) (bool, error)
	MarkCancelled(ctx context.Context, invoiceID string) (bool, error)
	Settle(ctx context.Context, invoiceID string) (*database.Invoice, error)
}

// Users — минимум, который сервису нужен от репозитория пользователей.
type Users interface {
	GetOrCreate(ctx context.Context, telegramID int64, username *string) (*database.User, error)
}

// Notifier получает события о судьбе счетов. Ошибки доставки не влияют на
// проведение платежа.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, invoice *database.Invoice)
	InvoiceExpired(ctx context.Context, invoice *database.Invoice)
}

// CreateParams — заявка пользователя на пополнение.
type CreateParams struct {
	UserID   int64
	Username *string
	ChatID   int64
	Amount   float64
	Gateway  string
	Asset    string
}

// PaymentService сводит вместе бухгалтерию, адаптеры шлюзов и уведомления.
type PaymentService struct {
	ledger   Ledger
	users    Users
	adapters map[string]gateway.Adapter
	notifier Notifier
}

func NewPaymentService(ledger Ledger, users Users, adapters map[string]gateway.Adapter, notifier Notifier) *PaymentService {
	return &PaymentService{
		ledger:   ledger,
		users:    users,
		adapters: adapters,
		notifier: notifier,
	}
}

// CreateInvoice проверяет заявку, выставляет счёт у шлюза и записывает его
// в бухгалтерию. Комиссия шлюза добавляется к сумме: пользователь платит
// amount + fee, на баланс зачисляется amount.
func (s *PaymentService) CreateInvoice(ctx context.Context, params CreateParams) (*database.Invoice, string, error) {
	if params.Amount < config.MinPaymentAmount() {
		return nil, "", fmt.Errorf("%.2f < %.2f: %w", params.Amount, config.MinPaymentAmount(), ErrAmountTooSmall)
	}
	if !config.IsGatewayEnabled(params.Gateway) {
		return nil, "", fmt.Errorf("%s: %w", params.Gateway, ErrGatewayDisabled)
	}
	adapter, ok := s.adapters[params.Gateway]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", params.Gateway, ErrGatewayDisabled)
	}

	now := time.Now()
	active, err := s.ledger.FindActiveByUser(ctx, params.UserID, now)
	if err != nil {
		return nil, "", fmt.Errorf("check active invoice: %w", err)
	}
	if active != nil {
		return active, "", fmt.Errorf("invoice %s: %w", active.InvoiceID, ErrActiveInvoiceExists)
	}

	if _, err = s.users.GetOrCreate(ctx, params.UserID, params.Username); err != nil {
		return nil, "", fmt.Errorf("ensure user: %w", err)
	}

	amount := decimal.NewFromFloat(params.Amount)
	fee := amount.Mul(decimal.NewFromFloat(config.FeePercent(params.Gateway))).Div(decimal.NewFromInt(100)).Round(2)
	total := amount.Add(fee)
	totalFloat, _ := total.Float64()

	created, err := adapter.CreateInvoice(ctx, gateway.CreateRequest{
		UserID: params.UserID,
		Amount: totalFloat,
		Asset:  params.Asset,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create invoice at %s: %w", params.Gateway, err)
	}

	feeFloat, _ := fee.Float64()
	invoice := &database.Invoice{
		InvoiceID:       created.InvoiceID,
		UserID:          params.UserID,
		Gateway:         database.Gateway(params.Gateway),
		RequestedAmount: params.Amount,
		FeeAmount:       feeFloat,
		TotalAmount:     totalFloat,
		Status:          database.InvoiceStatusPending,
		ExpiresAt:       now.Add(config.PaymentTimeout()),
	}
	if created.PayloadID != "" {
		invoice.PayloadID = &created.PayloadID
	}
	if created.Asset != "" {
		invoice.CryptoAsset = &created.Asset
	}
	if params.ChatID != 0 {
		invoice.ChatID = &params.ChatID
	}

	if _, err = s.ledger.Create(ctx, invoice); err != nil {
		return nil, "", fmt.Errorf("persist invoice: %w", err)
	}

	slog.Info("invoice created",
		"invoice_id", invoice.InvoiceID,
		"gateway", invoice.Gateway,
		"user_id", invoice.UserID,
		"amount", invoice.RequestedAmount,
		"total", invoice.TotalAmount)

	return invoice, created.PayURL, nil
}

// SettleByInvoiceID проводит оплату счёта. Идемпотентен: повторный вызов по
// уже проведённому счёту — no-op без ошибки.
func (s *PaymentService) SettleByInvoiceID(ctx context.Context, invoiceID string) error {
	invoice, err := s.ledger.Settle(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("settle %s: %w", invoiceID, err)
	}
	if invoice == nil {
		slog.Info("invoice already settled or unknown", "invoice_id", invoiceID)
		return nil
	}

	slog.Info("payment settled",
		"invoice_id", invoice.InvoiceID,
		"gateway", invoice.Gateway,
		"user_id", invoice.UserID,
		"amount", invoice.RequestedAmount)

	s.notifier.PaymentSucceeded(ctx, invoice)
	return nil
}

// CancelByInvoiceID переводит pending-счёт в cancelled. Конечные счета не
// трогает.
func (s *PaymentService) CancelByInvoiceID(ctx context.Context, invoiceID string) error {
	cancelled, err := s.ledger.MarkCancelled(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", invoiceID, err)
	}
	if cancelled {
		slog.Info("invoice cancelled", "invoice_id", invoiceID)
	}
	return nil
}

// AttachMessage запоминает сообщение бота со счётом: уведомления об исходе
// будут редактировать его.
func (s *PaymentService) AttachMessage(ctx context.Context, invoiceID string, messageID int, chatID int64) error {
	return s.ledger.UpdateMessageRef(ctx, invoiceID, messageID, chatID)
}

// ActiveInvoice возвращает текущий неоплаченный счёт пользователя.
func (s *PaymentService) ActiveInvoice(ctx context.Context, userID int64) (*database.Invoice, error) {
	return s.ledger.FindActiveByUser(ctx, userID, time.Now())
}
