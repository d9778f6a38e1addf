package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/internal/gateway"
)

type fakeLedger struct {
	invoices     map[string]*database.Invoice
	active       *database.Invoice
	settleErr    error
	settleCtxErr error
	pendingErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{invoices: make(map[string]*database.Invoice)}
}

func (f *fakeLedger) Create(_ context.Context, invoice *database.Invoice) (int64, error) {
	if _, ok := f.invoices[invoice.InvoiceID]; ok {
		return 0, database.ErrDuplicateInvoice
	}
	cp := *invoice
	f.invoices[invoice.InvoiceID] = &cp
	return int64(len(f.invoices)), nil
}

func (f *fakeLedger) FindPending(_ context.Context) ([]database.Invoice, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []database.Invoice
	for _, inv := range f.invoices {
		if inv.Status == database.InvoiceStatusPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeLedger) FindByInvoiceID(_ context.Context, invoiceID string) (*database.Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeLedger) FindActiveByUser(_ context.Context, _ int64, _ time.Time) (*database.Invoice, error) {
	return f.active, nil
}

func (f *fakeLedger) UpdateMessageRef(_ context.Context, invoiceID string, messageID int, chatID int64) error {
	if inv, ok := f.invoices[invoiceID]; ok {
		inv.MessageID = &messageID
		inv.ChatID = &chatID
	}
	return nil
}

func (f *fakeLedger) MarkExpired(_ context.Context, invoiceID string) (bool, error) {
	return f.markTerminal(invoiceID, database.InvoiceStatusExpired), nil
}

func (f *fakeLedger) MarkCancelled(_ context.Context, invoiceID string) (bool, error) {
	return f.markTerminal(invoiceID, database.InvoiceStatusCancelled), nil
}

func (f *fakeLedger) markTerminal(invoiceID string, status database.InvoiceStatus) bool {
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.Status != database.InvoiceStatusPending {
		return false
	}
	inv.Status = status
	return true
}

func (f *fakeLedger) Settle(ctx context.Context, invoiceID string) (*database.Invoice, error) {
	f.settleCtxErr = ctx.Err()
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.Status != database.InvoiceStatusPending {
		return nil, nil
	}
	inv.Status = database.InvoiceStatusPaid
	cp := *inv
	return &cp, nil
}

type fakeUsers struct{}

func (fakeUsers) GetOrCreate(_ context.Context, telegramID int64, username *string) (*database.User, error) {
	return &database.User{TelegramID: telegramID, Username: username}, nil
}

type fakeNotifier struct {
	succeeded []string
	expired   []string
}

func (f *fakeNotifier) PaymentSucceeded(_ context.Context, invoice *database.Invoice) {
	f.succeeded = append(f.succeeded, invoice.InvoiceID)
}

func (f *fakeNotifier) InvoiceExpired(_ context.Context, invoice *database.Invoice) {
	f.expired = append(f.expired, invoice.InvoiceID)
}

type fakeAdapter struct {
	name      string
	invoice   *gateway.Invoice
	status    gateway.Status
	createErr error
	checkErr  error
	checks    int
	onCheck   func()
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) CreateInvoice(_ context.Context, _ gateway.CreateRequest) (*gateway.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.invoice, nil
}

func (f *fakeAdapter) CheckStatus(_ context.Context, _ gateway.Ref) (gateway.Status, error) {
	f.checks++
	if f.onCheck != nil {
		f.onCheck()
	}
	if f.checkErr != nil {
		return "", f.checkErr
	}
	return f.status, nil
}

func setupPaymentConfig(t *testing.T) {
	t.Setenv("DISABLE_ENV_FILE", "true")
	t.Setenv("TELEGRAM_TOKEN", "123:test")
	t.Setenv("ADMIN_TELEGRAM_IDS", "1")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("CRYPTOBOT_API_KEY", "key")
	t.Setenv("FEE_PERCENT_CRYPTOBOT", "5")
	config.InitConfig()
}

func newService(ledger *fakeLedger, notifier *fakeNotifier, adapter gateway.Adapter) *PaymentService {
	return NewPaymentService(ledger, fakeUsers{}, map[string]gateway.Adapter{
		config.GatewayCryptoBot: adapter,
	}, notifier)
}

// **Feature: создание счёта, Property 1: минимальная сумма**
func TestCreateInvoiceBelowMinimum(t *testing.T) {
	setupPaymentConfig(t)

	ledger := newFakeLedger()
	svc := newService(ledger, &fakeNotifier{}, &fakeAdapter{name: config.GatewayCryptoBot})

	_, _, err := svc.CreateInvoice(context.Background(), CreateParams{
		UserID: 1, Amount: 5, Gateway: config.GatewayCryptoBot,
	})
	if !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("expected ErrAmountTooSmall, got %v", err)
	}
	if len(ledger.invoices) != 0 {
		t.Error("no invoice must be created")
	}
}

// **Feature: создание счёта, Property 2: выключенный шлюз**
func TestCreateInvoiceDisabledGateway(t *testing.T) {
	setupPaymentConfig(t)

	svc := newService(newFakeLedger(), &fakeNotifier{}, &fakeAdapter{name: config.GatewayCryptoBot})

	_, _, err := svc.CreateInvoice(context.Background(), CreateParams{
		UserID: 1, Amount: 100, Gateway: config.GatewayXRocket,
	})
	if !errors.Is(err, ErrGatewayDisabled) {
		t.Errorf("expected ErrGatewayDisabled, got %v", err)
	}
}

// **Feature: создание счёта, Property 3: один активный счёт**
func TestCreateInvoiceActiveExists(t *testing.T) {
	setupPaymentConfig(t)

	ledger := newFakeLedger()
	ledger.active = &database.Invoice{InvoiceID: "old", Status: database.InvoiceStatusPending}
	svc := newService(ledger, &fakeNotifier{}, &fakeAdapter{name: config.GatewayCryptoBot})

	existing, _, err := svc.CreateInvoice(context.Background(), CreateParams{
		UserID: 1, Amount: 100, Gateway: config.GatewayCryptoBot,
	})
	if !errors.Is(err, ErrActiveInvoiceExists) {
		t.Errorf("expected ErrActiveInvoiceExists, got %v", err)
	}
	if existing == nil || existing.InvoiceID != "old" {
		t.Error("existing invoice must be returned for reuse")
	}
}

// **Feature: создание счёта, Property 4: комиссия**
// Пользователь платит amount + fee, в бухгалтерию попадают обе суммы.
func TestCreateInvoiceFee(t *testing.T) {
	setupPaymentConfig(t)

	ledger := newFakeLedger()
	adapter := &fakeAdapter{
		name:    config.GatewayCryptoBot,
		invoice: &gateway.Invoice{InvoiceID: "inv-1", PayloadID: "cryptobot_aabbcc", PayURL: "https://t.me/pay", Asset: "USDT"},
	}
	svc := newService(ledger, &fakeNotifier{}, adapter)

	invoice, payURL, err := svc.CreateInvoice(context.Background(), CreateParams{
		UserID: 1, ChatID: 10, Amount: 100, Gateway: config.GatewayCryptoBot, Asset: "USDT",
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if payURL != "https://t.me/pay" {
		t.Errorf("payURL = %q", payURL)
	}
	if invoice.FeeAmount != 5 {
		t.Errorf("fee = %v, want 5 (5%% of 100)", invoice.FeeAmount)
	}
	if invoice.TotalAmount != 105 {
		t.Errorf("total = %v, want 105", invoice.TotalAmount)
	}
	if invoice.RequestedAmount != 100 {
		t.Errorf("requested = %v, want 100", invoice.RequestedAmount)
	}

	stored := ledger.invoices["inv-1"]
	if stored == nil {
		t.Fatal("invoice must be persisted")
	}
	if stored.PayloadID == nil || *stored.PayloadID != "cryptobot_aabbcc" {
		t.Error("payload id must be persisted for correlation")
	}
	if stored.CryptoAsset == nil || *stored.CryptoAsset != "USDT" {
		t.Error("asset must be persisted")
	}
}

// **Feature: проведение оплаты, Property 1: идемпотентность**
// Два подтверждения одной оплаты зачисляют деньги один раз и шлют одно
// уведомление.
func TestSettleIdempotent(t *testing.T) {
	setupPaymentConfig(t)

	ledger := newFakeLedger()
	ledger.invoices["inv-1"] = &database.Invoice{
		InvoiceID: "inv-1", UserID: 1, Status: database.InvoiceStatusPending, RequestedAmount: 100,
	}
	notifier := &fakeNotifier{}
	svc := newService(ledger, notifier, &fakeAdapter{name: config.GatewayCryptoBot})

	for i := 0; i < 2; i++ {
		if err := svc.SettleByInvoiceID(context.Background(), "inv-1"); err != nil {
			t.Fatalf("settle #%d: %v", i+1, err)
		}
	}

	if ledger.invoices["inv-1"].Status != database.InvoiceStatusPaid {
		t.Error("invoice must be paid")
	}
	if len(notifier.succeeded) != 1 {
		t.Errorf("expected exactly 1 success notification, got %d", len(notifier.succeeded))
	}
}

func TestSettleUnknownInvoice(t *testing.T) {
	setupPaymentConfig(t)

	svc := newService(newFakeLedger(), &fakeNotifier{}, &fakeAdapter{name: config.GatewayCryptoBot})
	if err := svc.SettleByInvoiceID(context.Background(), "ghost"); err != nil {
		t.Errorf("settling unknown invoice must be a no-op, got %v", err)
	}
}

// Отмена конечного счёта — no-op.
func TestCancelTerminalInvoice(t *testing.T) {
	setupPaymentConfig(t)

	ledger := newFakeLedger()
	ledger.invoices["inv-1"] = &database.Invoice{InvoiceID: "inv-1", Status: database.InvoiceStatusPaid}
	svc := newService(ledger, &fakeNotifier{}, &fakeAdapter{name: config.GatewayCryptoBot})

	if err := svc.CancelByInvoiceID(context.Background(), "inv-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ledger.invoices["inv-1"].Status != database.InvoiceStatusPaid {
		t.Error("paid invoice must stay paid")
	}
}
