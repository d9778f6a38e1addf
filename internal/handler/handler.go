package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stars-tg-shop-bot/internal/cache"
	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/internal/payment"
)

const (
	CallbackTopUp  = "topup"
	CallbackCancel = "cancel_invoice"
	CallbackPay    = "pay_" // префикс: pay_<gateway>

	// Диалог забывается через 10 минут бездействия.
	dialogTTLSeconds = 600
)

// Handler обслуживает диалоги с плательщиками. Текущее состояние платёжного
// диалога хранится в кэше и двигается по таблице переходов: недопустимые
// сообщения просто игнорируются.
type Handler struct {
	paymentService *payment.PaymentService
	userRepository *database.UserRepository
	states         *cache.StateCache
	printer        *message.Printer
}

func NewHandler(paymentService *payment.PaymentService, userRepository *database.UserRepository, states *cache.StateCache) *Handler {
	return &Handler{
		paymentService: paymentService,
		userRepository: userRepository,
		states:         states,
		printer:        message.NewPrinter(language.Russian),
	}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("pay_state_%d", userID)
}

func gatewayKey(userID int64) string {
	return fmt.Sprintf("pay_gateway_%d", userID)
}

func (h *Handler) dialogState(userID int64) payment.State {
	if raw, ok := h.states.GetString(stateKey(userID)); ok {
		return payment.State(raw)
	}
	return payment.StateInitial
}

func (h *Handler) setDialogState(userID int64, state payment.State) {
	if state == payment.StateInitial {
		h.states.Delete(stateKey(userID))
		h.states.Delete(gatewayKey(userID))
		return
	}
	h.states.SetString(stateKey(userID), string(state), dialogTTLSeconds)
}

// advance двигает диалог по событию. Запрещённый переход логируется и
// оставляет состояние на месте.
func (h *Handler) advance(userID int64, event payment.Event) (payment.State, bool) {
	current := h.dialogState(userID)
	next, err := current.Next(event)
	if err != nil {
		slog.Debug("dialog transition rejected", "user_id", userID, "state", current, "event", event)
		return current, false
	}
	h.setDialogState(userID, next)
	return next, true
}

// StartCommandHandler — /start: приветствие, баланс и меню.
func (h *Handler) StartCommandHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	user := update.Message.From
	var username *string
	if user.Username != "" {
		username = &user.Username
	}

	dbUser, err := h.userRepository.GetOrCreate(ctx, user.ID, username)
	if err != nil {
		slog.Error("failed to get or create user", "user_id", user.ID, "error", err)
		return
	}

	text := h.printer.Sprintf(
		"Привет! Ваш баланс: <b>%.2f ₽</b>.\n\nПополните его любым удобным способом.",
		dbUser.Balance)

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: h.mainKeyboard(),
	})
	if err != nil {
		slog.Error("failed to send start message", "error", err)
	}
}

// BalanceCommandHandler — /balance.
func (h *Handler) BalanceCommandHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	dbUser, err := h.userRepository.FindByTelegramID(ctx, update.Message.From.ID)
	if err != nil {
		slog.Error("failed to load user", "user_id", update.Message.From.ID, "error", err)
		return
	}

	var balance float64
	if dbUser != nil {
		balance = dbUser.Balance
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      h.printer.Sprintf("Ваш баланс: <b>%.2f ₽</b>", balance),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		slog.Error("failed to send balance", "error", err)
	}
}

// TopUpCallbackHandler показывает доступные шлюзы или уже выставленный счёт.
func (h *Handler) TopUpCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answerCallback(ctx, b, update)
	userID := update.CallbackQuery.From.ID
	chatID := update.CallbackQuery.Message.Message.Chat.ID

	active, err := h.paymentService.ActiveInvoice(ctx, userID)
	if err != nil {
		slog.Error("failed to check active invoice", "user_id", userID, "error", err)
		return
	}
	if active != nil {
		h.sendText(ctx, b, chatID, h.printer.Sprintf(
			"У вас уже есть неоплаченный счёт на <b>%.2f ₽</b>. Оплатите или отмените его командой /cancel.",
			active.TotalAmount))
		return
	}

	var rows [][]models.InlineKeyboardButton
	for _, gw := range config.Gateways {
		if !config.IsGatewayEnabled(gw) {
			continue
		}
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         gatewayButtonTitle(gw),
			CallbackData: CallbackPay + gw,
		}})
	}
	if len(rows) == 0 {
		h.sendText(ctx, b, chatID, "Нет доступных способов оплаты. Попробуйте позже.")
		return
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        "Выберите способ оплаты:",
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		slog.Error("failed to send gateway menu", "error", err)
	}
}

// PayCallbackHandler запоминает выбранный шлюз и просит сумму.
func (h *Handler) PayCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answerCallback(ctx, b, update)
	userID := update.CallbackQuery.From.ID
	chatID := update.CallbackQuery.Message.Message.Chat.ID

	gatewayName := strings.TrimPrefix(update.CallbackQuery.Data, CallbackPay)
	if !config.IsGatewayEnabled(gatewayName) {
		h.sendText(ctx, b, chatID, "Этот способ оплаты сейчас недоступен.")
		return
	}

	// Сброс возможного прошлого диалога и старт нового.
	h.setDialogState(userID, payment.StateInitial)
	if _, ok := h.advance(userID, payment.EventCreatePayment); !ok {
		return
	}
	h.states.SetString(gatewayKey(userID), gatewayName, dialogTTLSeconds)

	h.sendText(ctx, b, chatID, h.printer.Sprintf(
		"Введите сумму пополнения (минимум %.0f ₽):", config.MinPaymentAmount()))
}

// IsAwaitingAmount — match-функция: текст принимается только когда диалог
// ждёт сумму.
func (h *Handler) IsAwaitingAmount(update *models.Update) bool {
	if update.Message == nil || update.Message.Text == "" || strings.HasPrefix(update.Message.Text, "/") {
		return false
	}
	return h.dialogState(update.Message.From.ID) == payment.StatePending
}

// AmountInputHandler валидирует сумму и выставляет счёт.
func (h *Handler) AmountInputHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if _, ok := h.advance(userID, payment.EventValidatePayment); !ok {
		return
	}

	amount, err := parseAmount(update.Message.Text)
	if err != nil || amount < config.MinPaymentAmount() {
		h.advance(userID, payment.EventValidationFail)
		h.setDialogState(userID, payment.StateInitial)
		h.sendText(ctx, b, chatID, h.printer.Sprintf(
			"Некорректная сумма. Минимум %.0f ₽, попробуйте ещё раз через меню.", config.MinPaymentAmount()))
		return
	}
	h.advance(userID, payment.EventValidationOK)

	gatewayName, ok := h.states.GetString(gatewayKey(userID))
	if !ok {
		h.setDialogState(userID, payment.StateInitial)
		h.sendText(ctx, b, chatID, "Диалог устарел, начните заново через меню.")
		return
	}

	h.advance(userID, payment.EventStartProcessing)

	var username *string
	if update.Message.From.Username != "" {
		username = &update.Message.From.Username
	}

	invoice, payURL, err := h.paymentService.CreateInvoice(ctx, payment.CreateParams{
		UserID:   userID,
		Username: username,
		ChatID:   chatID,
		Amount:   amount,
		Gateway:  gatewayName,
	})
	if err != nil {
		h.setDialogState(userID, payment.StateInitial)
		h.replyCreateError(ctx, b, chatID, err)
		return
	}

	h.advance(userID, payment.EventPaymentInitiated)

	text := h.printer.Sprintf(
		"Счёт на <b>%.2f ₽</b> выставлен (комиссия %.2f ₽).\nОплатите его по ссылке — баланс пополнится автоматически.",
		invoice.TotalAmount, invoice.FeeAmount)

	msg, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Оплатить", URL: payURL}},
			{{Text: "Отменить", CallbackData: CallbackCancel}},
		}},
	})
	if err != nil {
		slog.Error("failed to send invoice message", "invoice_id", invoice.InvoiceID, "error", err)
		return
	}

	if err = h.paymentService.AttachMessage(ctx, invoice.InvoiceID, msg.ID, chatID); err != nil {
		slog.Error("failed to attach message to invoice", "invoice_id", invoice.InvoiceID, "error", err)
	}
}

// CancelCallbackHandler и /cancel отменяют активный счёт.
func (h *Handler) CancelCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answerCallback(ctx, b, update)
	h.cancelActive(ctx, b, update.CallbackQuery.From.ID, update.CallbackQuery.Message.Message.Chat.ID)
}

func (h *Handler) CancelCommandHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.cancelActive(ctx, b, update.Message.From.ID, update.Message.Chat.ID)
}

func (h *Handler) cancelActive(ctx context.Context, b *bot.Bot, userID, chatID int64) {
	active, err := h.paymentService.ActiveInvoice(ctx, userID)
	if err != nil {
		slog.Error("failed to check active invoice", "user_id", userID, "error", err)
		return
	}
	if active == nil {
		h.sendText(ctx, b, chatID, "У вас нет активного счёта.")
		return
	}

	if err = h.paymentService.CancelByInvoiceID(ctx, active.InvoiceID); err != nil {
		slog.Error("failed to cancel invoice", "invoice_id", active.InvoiceID, "error", err)
		return
	}

	h.advance(userID, payment.EventCancelPayment)
	h.setDialogState(userID, payment.StateInitial)
	h.sendText(ctx, b, chatID, "Счёт отменён.")
}

func (h *Handler) replyCreateError(ctx context.Context, b *bot.Bot, chatID int64, err error) {
	switch {
	case errors.Is(err, payment.ErrAmountTooSmall):
		h.sendText(ctx, b, chatID, h.printer.Sprintf("Минимальная сумма пополнения — %.0f ₽.", config.MinPaymentAmount()))
	case errors.Is(err, payment.ErrActiveInvoiceExists):
		h.sendText(ctx, b, chatID, "У вас уже есть неоплаченный счёт. Отмените его командой /cancel.")
	case errors.Is(err, payment.ErrGatewayDisabled):
		h.sendText(ctx, b, chatID, "Этот способ оплаты сейчас недоступен.")
	default:
		slog.Error("failed to create invoice", "error", err)
		h.sendText(ctx, b, chatID, "Не получилось выставить счёт. Попробуйте позже.")
	}
}

func (h *Handler) mainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "💳 Пополнить баланс", CallbackData: CallbackTopUp}},
	}}
}

func (h *Handler) sendText(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		slog.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) answerCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})
	if err != nil {
		slog.Warn("failed to answer callback query", "error", err)
	}
}

func gatewayButtonTitle(gw string) string {
	switch gw {
	case config.GatewayLolz:
		return "Lolzteam Market"
	case config.GatewayCryptoBot:
		return "CryptoBot (криптовалюта)"
	case config.GatewayXRocket:
		return "xRocket (TON)"
	case config.GatewayCrystalPay:
		return "CrystalPay"
	case config.GatewayRobokassa:
		return "Robokassa (карта)"
	default:
		return gw
	}
}

// parseAmount принимает "100", "100.50" и "100,50".
func parseAmount(text string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
