package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type Gateway string

const (
	GatewayLolz       Gateway = "lolz"
	GatewayCryptoBot  Gateway = "cryptobot"
	GatewayXRocket    Gateway = "xrocket"
	GatewayCrystalPay Gateway = "crystalpay"
	GatewayRobokassa  Gateway = "robokassa"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsTerminal сообщает, достиг ли счёт конечного статуса. Конечный счёт
// больше не изменяется.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusExpired || s == InvoiceStatusCancelled
}

// ErrDuplicateInvoice возвращается при попытке вставить счёт с уже
// существующим invoice_id. Это коллизия идентификаторов или баг вызывающего.
var ErrDuplicateInvoice = errors.New("duplicate invoice id")

// Invoice — один счёт на пополнение, выставленный конкретному шлюзу.
// invoice_id присваивает шлюз и он уникален среди всех шлюзов; payload_id —
// вторичный ключ корреляции для шлюзов, чей invoice_id известен только
// после создания счёта. message_id/chat_id хранятся как непрозрачные данные
// для UI-слоя и здесь не интерпретируются.
type Invoice struct {
	ID              int64         `db:"id"`
	InvoiceID       string        `db:"invoice_id"`
	PayloadID       *string       `db:"payload_id"`
	UserID          int64         `db:"user_id"`
	Gateway         Gateway       `db:"gateway"`
	RequestedAmount float64       `db:"requested_amount"`
	FeeAmount       float64       `db:"fee_amount"`
	TotalAmount     float64       `db:"total_amount"`
	CryptoAsset     *string       `db:"crypto_asset"`
	Status          InvoiceStatus `db:"status"`
	MessageID       *int          `db:"message_id"`
	ChatID          *int64        `db:"chat_id"`
	CreatedAt       time.Time     `db:"created_at"`
	ExpiresAt       time.Time     `db:"expires_at"`
	PaidAt          *time.Time    `db:"paid_at"`
}

// invoiceColumns returns all invoice columns for SELECT queries in correct order
func invoiceColumns() []string {
	return []string{
		"id", "invoice_id", "payload_id", "user_id", "gateway",
		"requested_amount", "fee_amount", "total_amount", "crypto_asset",
		"status", "message_id", "chat_id", "created_at", "expires_at", "paid_at",
	}
}

// scanInvoice scans a row into an Invoice struct
func scanInvoice(row pgx.Row) (*Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID, &i.InvoiceID, &i.PayloadID, &i.UserID, &i.Gateway,
		&i.RequestedAmount, &i.FeeAmount, &i.TotalAmount, &i.CryptoAsset,
		&i.Status, &i.MessageID, &i.ChatID, &i.CreatedAt, &i.ExpiresAt, &i.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// scanInvoiceFromRows scans rows into an Invoice struct
func scanInvoiceFromRows(rows pgx.Rows) (*Invoice, error) {
	var i Invoice
	err := rows.Scan(
		&i.ID, &i.InvoiceID, &i.PayloadID, &i.UserID, &i.Gateway,
		&i.RequestedAmount, &i.FeeAmount, &i.TotalAmount, &i.CryptoAsset,
		&i.Status, &i.MessageID, &i.ChatID, &i.CreatedAt, &i.ExpiresAt, &i.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

func (ir *InvoiceRepository) Create(ctx context.Context, invoice *Invoice) (int64, error) {
	buildInsert := sq.Insert("invoices").
		Columns("invoice_id", "payload_id", "user_id", "gateway",
			"requested_amount", "fee_amount", "total_amount", "crypto_asset",
			"status", "message_id", "chat_id", "expires_at").
		Values(invoice.InvoiceID, invoice.PayloadID, invoice.UserID, invoice.Gateway,
			invoice.RequestedAmount, invoice.FeeAmount, invoice.TotalAmount, invoice.CryptoAsset,
			invoice.Status, invoice.MessageID, invoice.ChatID, invoice.ExpiresAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar)

	sql, args, err := buildInsert.ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	err = ir.pool.QueryRow(ctx, sql, args...).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("invoice %s: %w", invoice.InvoiceID, ErrDuplicateInvoice)
		}
		return 0, fmt.Errorf("failed to insert invoice: %w", err)
	}

	return id, nil
}

func buildFindPendingQuery() sq.SelectBuilder {
	return sq.Select(invoiceColumns()...).
		From("invoices").
		Where(sq.Eq{"status": InvoiceStatusPending}).
		OrderBy("created_at ASC")
}

// FindPending возвращает все неоплаченные счета, включая просроченные:
// цикл сверки сам решает, какие из них опрашивать, а какие погасить.
func (ir *InvoiceRepository) FindPending(ctx context.Context) ([]Invoice, error) {
	sql, args, err := buildFindPendingQuery().PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := ir.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		invoice, err := scanInvoiceFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return invoices, nil
}

func (ir *InvoiceRepository) FindByInvoiceID(ctx context.Context, invoiceID string) (*Invoice, error) {
	buildSelect := sq.Select(invoiceColumns()...).
		From("invoices").
		Where(sq.Eq{"invoice_id": invoiceID}).
		PlaceholderFormat(sq.Dollar)

	sql, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, err
	}

	invoice, err := scanInvoice(ir.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	return invoice, nil
}

func buildFindActiveByUserQuery(userID int64, now time.Time) sq.SelectBuilder {
	return sq.Select(invoiceColumns()...).
		From("invoices").
		Where(sq.And{
			sq.Eq{"user_id": userID},
			sq.Eq{"status": InvoiceStatusPending},
			sq.Gt{"expires_at": now},
		}).
		OrderBy("created_at DESC").
		Limit(1)
}

// FindActiveByUser возвращает текущий неоплаченный счёт пользователя, если
// он есть. UI-слой использует это для правила "один счёт на плательщика".
func (ir *InvoiceRepository) FindActiveByUser(ctx context.Context, userID int64, now time.Time) (*Invoice, error) {
	sql, args, err := buildFindActiveByUserQuery(userID, now).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	invoice, err := scanInvoice(ir.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query invoice: %w", err)
	}

	return invoice, nil
}

func buildMarkTerminalQuery(invoiceID string, status InvoiceStatus) sq.UpdateBuilder {
	return sq.Update("invoices").
		Set("status", status).
		Where(sq.And{
			sq.Eq{"invoice_id": invoiceID},
			sq.Eq{"status": InvoiceStatusPending},
		})
}

// MarkExpired переводит счёт pending → expired. Идемпотентен: повторный
// вызов (или вызов по уже конечному счёту) возвращает false без изменений.
func (ir *InvoiceRepository) MarkExpired(ctx context.Context, invoiceID string) (bool, error) {
	return ir.markTerminal(ctx, invoiceID, InvoiceStatusExpired)
}

// MarkCancelled переводит счёт pending → cancelled, тем же правилом.
func (ir *InvoiceRepository) MarkCancelled(ctx context.Context, invoiceID string) (bool, error) {
	return ir.markTerminal(ctx, invoiceID, InvoiceStatusCancelled)
}

func (ir *InvoiceRepository) markTerminal(ctx context.Context, invoiceID string, status InvoiceStatus) (bool, error) {
	sql, args, err := buildMarkTerminalQuery(invoiceID, status).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	result, err := ir.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update invoice: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func buildUpdateMessageRefQuery(invoiceID string, messageID int, chatID int64) sq.UpdateBuilder {
	return sq.Update("invoices").
		Set("message_id", messageID).
		Set("chat_id", chatID).
		Where(sq.Eq{"invoice_id": invoiceID})
}

// UpdateMessageRef привязывает к счёту сообщение бота, чтобы уведомления
// могли редактировать его, а не плодить новые.
func (ir *InvoiceRepository) UpdateMessageRef(ctx context.Context, invoiceID string, messageID int, chatID int64) error {
	sql, args, err := buildUpdateMessageRefQuery(invoiceID, messageID, chatID).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err = ir.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to update invoice message ref: %w", err)
	}
	return nil
}

// Settle атомарно проводит оплату: в одной транзакции перечитывает счёт под
// блокировкой, проверяет что он всё ещё pending, переводит его в paid и
// зачисляет requested_amount (без комиссии) на баланс владельца. Если счёт
// уже не pending, возвращает nil без каких-либо изменений — это и защищает
// от двойного зачисления, когда оплату видят и цикл сверки, и callback.
func (ir *InvoiceRepository) Settle(ctx context.Context, invoiceID string) (*Invoice, error) {
	tx, err := ir.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	buildSelect := sq.Select(invoiceColumns()...).
		From("invoices").
		Where(sq.Eq{"invoice_id": invoiceID}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar)

	sql, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	invoice, err := scanInvoice(tx.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query invoice for settle: %w", err)
	}

	if invoice.Status != InvoiceStatusPending {
		return nil, nil
	}

	now := time.Now()

	buildUpdate := sq.Update("invoices").
		Set("status", InvoiceStatusPaid).
		Set("paid_at", now).
		Where(sq.Eq{"invoice_id": invoiceID}).
		PlaceholderFormat(sq.Dollar)

	sql, args, err = buildUpdate.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if _, err = tx.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}

	buildCredit := sq.Update("users").
		Set("balance", sq.Expr("balance + ?", invoice.RequestedAmount)).
		Where(sq.Eq{"telegram_id": invoice.UserID}).
		PlaceholderFormat(sq.Dollar)

	sql, args, err = buildCredit.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if _, err = tx.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settle tx: %w", err)
	}

	invoice.Status = InvoiceStatusPaid
	invoice.PaidAt = &now
	return invoice, nil
}
