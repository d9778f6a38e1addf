package payment

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/internal/gateway"
)

// Checker — цикл сверки: периодически опрашивает шлюзы по всем
// неоплаченным счетам, проводит увиденные оплаты и гасит просроченные
// счета. Ошибка прохода не останавливает цикл, а лишь увеличивает паузу
// до следующего.
type Checker struct {
	ledger   Ledger
	adapters map[string]gateway.Adapter
	notifier Notifier
}

func NewChecker(ledger Ledger, adapters map[string]gateway.Adapter, notifier Notifier) *Checker {
	return &Checker{
		ledger:   ledger,
		adapters: adapters,
		notifier: notifier,
	}
}

// Run крутит цикл до отмены контекста.
func (c *Checker) Run(ctx context.Context) {
	slog.Info("payment checker started",
		"interval", config.CheckInterval(),
		"backoff", config.CheckBackoff())

	for {
		wait := config.CheckInterval()
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("payment check pass failed", "error", err)
			wait = config.CheckBackoff()
		}

		select {
		case <-ctx.Done():
			slog.Info("payment checker stopped")
			return
		case <-time.After(wait):
		}
	}

	slog.Info("payment checker stopped")
}

func (c *Checker) runOnce(ctx context.Context) error {
	now := time.Now()

	invoices, err := c.ledger.FindPending(ctx)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}

	// Счета выключенных шлюзов не трогаем вовсе, даже просроченные: шлюз
	// могут включить обратно. Просроченные остальных гасятся сразу, без
	// похода к шлюзу.
	byGateway := make(map[string][]database.Invoice)
	for _, invoice := range invoices {
		name := string(invoice.Gateway)
		if !config.IsGatewayEnabled(name) {
			slog.Debug("skipping disabled gateway invoice", "gateway", name, "invoice_id", invoice.InvoiceID)
			continue
		}
		if !invoice.ExpiresAt.After(now) {
			c.expire(ctx, invoice)
			continue
		}
		byGateway[name] = append(byGateway[name], invoice)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for name, batch := range byGateway {
		batch := batch
		adapter, ok := c.adapters[name]
		if !ok {
			slog.Warn("no adapter for gateway", "gateway", name, "invoices", len(batch))
			continue
		}

		eg.Go(func() error {
			c.checkGateway(egCtx, adapter, batch)
			return egCtx.Err()
		})
	}

	return eg.Wait()
}

// checkGateway опрашивает один шлюз по его счетам. Ошибка по отдельному
// счёту логируется и не мешает остальным: состояние счёта неизвестно,
// следующий проход спросит снова.
func (c *Checker) checkGateway(ctx context.Context, adapter gateway.Adapter, invoices []database.Invoice) {
	for _, invoice := range invoices {
		if ctx.Err() != nil {
			return
		}

		ref := gateway.Ref{InvoiceID: invoice.InvoiceID}
		if invoice.PayloadID != nil {
			ref.PayloadID = *invoice.PayloadID
		}

		status, err := adapter.CheckStatus(ctx, ref)
		if err != nil {
			slog.Error("invoice status check failed",
				"gateway", adapter.Name(),
				"invoice_id", invoice.InvoiceID,
				"error", err)
			continue
		}

		switch status {
		case gateway.StatusPaid:
			c.settle(ctx, invoice)
		case gateway.StatusExpired:
			c.expire(ctx, invoice)
		case gateway.StatusCancelled:
			if _, err := c.ledger.MarkCancelled(ctx, invoice.InvoiceID); err != nil {
				slog.Error("failed to cancel invoice", "invoice_id", invoice.InvoiceID, "error", err)
			}
		case gateway.StatusPending:
			// Ждём следующий проход.
		}
	}
}

func (c *Checker) settle(ctx context.Context, invoice database.Invoice) {
	// Шлюз уже подтвердил оплату: зачисление доводим до конца даже на
	// остановке процесса, отмена прерывает только ожидание между проходами.
	ctx = context.WithoutCancel(ctx)

	settled, err := c.ledger.Settle(ctx, invoice.InvoiceID)
	if err != nil {
		slog.Error("failed to settle invoice", "invoice_id", invoice.InvoiceID, "error", err)
		return
	}
	if settled == nil {
		// Кто-то успел раньше (например, callback) — зачисления не было.
		return
	}

	slog.Info("payment settled by checker",
		"invoice_id", settled.InvoiceID,
		"gateway", settled.Gateway,
		"user_id", settled.UserID,
		"amount", settled.RequestedAmount)

	c.notifier.PaymentSucceeded(ctx, settled)
}

func (c *Checker) expire(ctx context.Context, invoice database.Invoice) {
	expired, err := c.ledger.MarkExpired(ctx, invoice.InvoiceID)
	if err != nil {
		slog.Error("failed to expire invoice", "invoice_id", invoice.InvoiceID, "error", err)
		return
	}
	if !expired {
		return
	}

	slog.Info("invoice expired", "invoice_id", invoice.InvoiceID, "gateway", invoice.Gateway)
	c.notifier.InvoiceExpired(ctx, &invoice)
}
