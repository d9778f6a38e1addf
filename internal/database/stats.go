package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// GatewayStats — агрегат оплаченных счетов одного шлюза за период.
type GatewayStats struct {
	Gateway     Gateway
	PaidCount   int64
	TotalAmount float64
	TotalFees   float64
}

func buildPaymentStatsQuery(since time.Time) sq.SelectBuilder {
	return sq.Select(
		"gateway",
		"COUNT(*)",
		"COALESCE(SUM(requested_amount), 0)",
		"COALESCE(SUM(fee_amount), 0)",
	).
		From("invoices").
		Where(sq.And{
			sq.Eq{"status": InvoiceStatusPaid},
			sq.GtOrEq{"paid_at": since},
		}).
		GroupBy("gateway").
		OrderBy("gateway ASC")
}

// PaymentStats возвращает по-шлюзовую выручку с момента since. Используется
// ежедневным отчётом оператору.
func (ir *InvoiceRepository) PaymentStats(ctx context.Context, since time.Time) ([]GatewayStats, error) {
	sql, args, err := buildPaymentStatsQuery(since).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := ir.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []GatewayStats
	for rows.Next() {
		var s GatewayStats
		if err = rows.Scan(&s.Gateway, &s.PaidCount, &s.TotalAmount, &s.TotalFees); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}
