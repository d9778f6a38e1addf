package database

import (
	"strings"
	"testing"
	"testing/quick"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// **Feature: выборка pending-счетов, Property 1**
// FindPending отбирает все неоплаченные счета, просроченные в том числе:
// решение о погашении принимает цикл сверки, а не SQL.
func TestBuildFindPendingQuery(t *testing.T) {
	sql, args, err := buildFindPendingQuery().PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	if !strings.Contains(sql, "status = $1") {
		t.Errorf("query must filter by status, got: %s", sql)
	}

	// expires_at есть в списке колонок, поэтому смотрим только на WHERE.
	_, where, found := strings.Cut(sql, "WHERE")
	if !found {
		t.Fatalf("query has no WHERE clause: %s", sql)
	}
	if strings.Contains(where, "expires_at") {
		t.Errorf("query must not filter by expiry, got: %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY created_at ASC") {
		t.Errorf("query must order by creation time, got: %s", sql)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if args[0] != InvoiceStatusPending {
		t.Errorf("expected pending status filter, got %v", args[0])
	}
}

// **Feature: идемпотентные терминальные переходы, Property 1**
// Запрос MarkExpired/MarkCancelled обязан проверять текущий статус в WHERE:
// только так повторный вызов не затирает уже конечный счёт.
func TestBuildMarkTerminalQueryGuardsPending(t *testing.T) {
	for _, status := range []InvoiceStatus{InvoiceStatusExpired, InvoiceStatusCancelled} {
		sql, args, err := buildMarkTerminalQuery("inv-42", status).PlaceholderFormat(sq.Dollar).ToSql()
		if err != nil {
			t.Fatalf("ToSql: %v", err)
		}

		if !strings.Contains(sql, "invoice_id = ") {
			t.Errorf("query must target a single invoice, got: %s", sql)
		}
		if !strings.Contains(sql, "status = ") || !strings.Contains(sql, "AND") {
			t.Errorf("query must guard on pending status, got: %s", sql)
		}

		var foundPendingGuard bool
		for _, a := range args {
			if a == InvoiceStatusPending {
				foundPendingGuard = true
			}
		}
		if !foundPendingGuard {
			t.Errorf("args must contain pending guard, got %v", args)
		}
	}
}

// **Feature: один активный счёт на пользователя, Property 1**
func TestBuildFindActiveByUserQuery(t *testing.T) {
	now := time.Now()

	sql, args, err := buildFindActiveByUserQuery(777, now).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	if !strings.Contains(sql, "user_id = $1") {
		t.Errorf("query must filter by user, got: %s", sql)
	}
	if !strings.Contains(sql, "LIMIT 1") {
		t.Errorf("query must return at most one invoice, got: %s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != int64(777) {
		t.Errorf("expected user id arg, got %v", args[0])
	}
}

func TestBuildUpdateMessageRefQuery(t *testing.T) {
	sql, args, err := buildUpdateMessageRefQuery("inv-1", 55, 99).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "message_id") || !strings.Contains(sql, "chat_id") {
		t.Errorf("query must set message ref, got: %s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
}

// **Feature: отчёт по выручке, Property 1**
// Статистика считается только по оплаченным счетам.
func TestBuildPaymentStatsQuery(t *testing.T) {
	since := time.Now().AddDate(0, 0, -1)

	sql, args, err := buildPaymentStatsQuery(since).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	if !strings.Contains(sql, "GROUP BY gateway") {
		t.Errorf("stats must be grouped per gateway, got: %s", sql)
	}
	if args[0] != InvoiceStatusPaid {
		t.Errorf("stats must count paid invoices only, got %v", args[0])
	}
}

// **Feature: конечные статусы, Property 1**
// Terminal invoice is terminal regardless of how it was reached:
// paid, expired and cancelled are final, pending is not.
func TestInvoiceStatusIsTerminal(t *testing.T) {
	cases := map[InvoiceStatus]bool{
		InvoiceStatusPending:   false,
		InvoiceStatusPaid:      true,
		InvoiceStatusExpired:   true,
		InvoiceStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

// **Feature: порядок колонок, Property 1**
// The Scan call in scanInvoice relies on invoiceColumns order; the two must
// never drift apart. We pin the count and a few anchors here.
func TestInvoiceColumnsShape(t *testing.T) {
	cols := invoiceColumns()
	if len(cols) != 15 {
		t.Fatalf("expected 15 columns, got %d: %v", len(cols), cols)
	}
	if cols[0] != "id" || cols[1] != "invoice_id" || cols[len(cols)-1] != "paid_at" {
		t.Errorf("column anchors moved: %v", cols)
	}
}

// **Feature: вставка счёта, Property 1**
// Все денежные поля и ключи корреляции попадают в INSERT.
func TestCreateInsertQueryShape(t *testing.T) {
	f := func(userID int64, amount float64) bool {
		payload := "cryptobot_abc"
		invoice := &Invoice{
			InvoiceID:       "inv-1",
			PayloadID:       &payload,
			UserID:          userID,
			Gateway:         GatewayCryptoBot,
			RequestedAmount: amount,
			FeeAmount:       0,
			TotalAmount:     amount,
			Status:          InvoiceStatusPending,
			ExpiresAt:       time.Now().Add(15 * time.Minute),
		}

		sql, args, err := sq.Insert("invoices").
			Columns("invoice_id", "payload_id", "user_id", "gateway",
				"requested_amount", "fee_amount", "total_amount", "crypto_asset",
				"status", "message_id", "chat_id", "expires_at").
			Values(invoice.InvoiceID, invoice.PayloadID, invoice.UserID, invoice.Gateway,
				invoice.RequestedAmount, invoice.FeeAmount, invoice.TotalAmount, invoice.CryptoAsset,
				invoice.Status, invoice.MessageID, invoice.ChatID, invoice.ExpiresAt).
			Suffix("RETURNING id").
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return false
		}
		return strings.Contains(sql, "RETURNING id") && len(args) == 12
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
