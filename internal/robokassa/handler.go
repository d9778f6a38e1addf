package robokassa

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stars-tg-shop-bot/internal/config"
)

// PaymentProcessor — часть платёжного сервиса, нужная callback'ам.
type PaymentProcessor interface {
	SettleByInvoiceID(ctx context.Context, invoiceID string) error
	CancelByInvoiceID(ctx context.Context, invoiceID string) error
}

// Handler принимает серверные callback'и Robokassa: Result URL (оплата
// прошла), Fail URL (плательщик отказался) и Check URL (предварительная
// проверка). Result проверяется основным паролем, Fail и Check — вторым.
type Handler struct {
	processor PaymentProcessor
}

func NewHandler(processor PaymentProcessor) *Handler {
	return &Handler{processor: processor}
}

type callbackData struct {
	Amount      float64
	InvoiceID   string
	Signature   string
	ExtraParams map[string]string
}

func parseCallback(r *http.Request) (*callbackData, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	amount, err := strconv.ParseFloat(r.Form.Get("OutSum"), 64)
	if err != nil {
		return nil, fmt.Errorf("bad OutSum: %w", err)
	}

	invoiceID := r.Form.Get("InvId")
	if invoiceID == "" {
		return nil, fmt.Errorf("missing InvId")
	}

	extra := make(map[string]string)
	for key := range r.Form {
		if strings.HasPrefix(key, "Shp_") {
			extra[strings.TrimPrefix(key, "Shp_")] = r.Form.Get(key)
		}
	}

	return &callbackData{
		Amount:      amount,
		InvoiceID:   invoiceID,
		Signature:   r.Form.Get("SignatureValue"),
		ExtraParams: extra,
	}, nil
}

// ResultHandler обрабатывает Result URL. Валидная подпись проводит оплату и
// отвечает "OK<InvId>" — только такой ответ Robokassa считает успешным.
func (h *Handler) ResultHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		data, err := parseCallback(r)
		if err != nil {
			slog.Error("robokassa result: bad request", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if !VerifySignature(config.RobokassaMerchantLogin(), data.Amount, data.InvoiceID,
			data.Signature, config.RobokassaPassword1(), data.ExtraParams) {
			slog.Warn("robokassa result: invalid signature", "invoice_id", data.InvoiceID)
			fmt.Fprint(w, "Invalid signature")
			return
		}

		if err = h.processor.SettleByInvoiceID(ctx, data.InvoiceID); err != nil {
			slog.Error("robokassa result: settle error", "invoice_id", data.InvoiceID, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		fmt.Fprintf(w, "OK%s", data.InvoiceID)
	})
}

// FailHandler обрабатывает Fail URL: плательщик отменил оплату.
func (h *Handler) FailHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		data, err := parseCallback(r)
		if err != nil {
			slog.Error("robokassa fail: bad request", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if !VerifySignature(config.RobokassaMerchantLogin(), data.Amount, data.InvoiceID,
			data.Signature, config.RobokassaPassword2(), data.ExtraParams) {
			slog.Warn("robokassa fail: invalid signature", "invoice_id", data.InvoiceID)
			fmt.Fprint(w, "Invalid signature")
			return
		}

		if err = h.processor.CancelByInvoiceID(ctx, data.InvoiceID); err != nil {
			slog.Error("robokassa fail: cancel error", "invoice_id", data.InvoiceID, "error", err)
		}

		fmt.Fprint(w, "FAIL")
	})
}

// CheckHandler обрабатывает Check URL — предварительную проверку перед
// списанием. Состояние счёта не меняется.
func (h *Handler) CheckHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := parseCallback(r)
		if err != nil {
			slog.Error("robokassa check: bad request", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if !VerifySignature(config.RobokassaMerchantLogin(), data.Amount, data.InvoiceID,
			data.Signature, config.RobokassaPassword2(), data.ExtraParams) {
			slog.Warn("robokassa check: invalid signature", "invoice_id", data.InvoiceID)
			fmt.Fprint(w, "Invalid signature")
			return
		}

		fmt.Fprintf(w, "OK%s", data.InvoiceID)
	})
}
