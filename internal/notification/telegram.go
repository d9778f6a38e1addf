package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/utils"
)

var gatewayDisplayNames = map[database.Gateway]string{
	database.GatewayLolz:       "Lolzteam Market",
	database.GatewayCryptoBot:  "CryptoBot",
	database.GatewayXRocket:    "xRocket",
	database.GatewayCrystalPay: "CrystalPay",
	database.GatewayRobokassa:  "Robokassa",
}

func gatewayDisplayName(g database.Gateway) string {
	if name, ok := gatewayDisplayNames[g]; ok {
		return name
	}
	return string(g)
}

type userLookup interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*database.User, error)
}

// TelegramNotifier шлёт пользователю исход его счёта, а администраторам —
// сводки. Ошибки доставки логируются и не всплывают: оплата уже проведена,
// уведомление — best effort.
type TelegramNotifier struct {
	bot     *bot.Bot
	users   userLookup
	printer *message.Printer
}

func NewTelegramNotifier(b *bot.Bot, users userLookup) *TelegramNotifier {
	return &TelegramNotifier{
		bot:     b,
		users:   users,
		printer: message.NewPrinter(language.Russian),
	}
}

// PaymentSucceeded сообщает плательщику о зачислении. Если известно
// сообщение со счётом, оно редактируется; иначе шлётся новое.
func (n *TelegramNotifier) PaymentSucceeded(ctx context.Context, invoice *database.Invoice) {
	text := n.printer.Sprintf(
		"✅ Оплата получена!\n\nНа ваш баланс зачислено <b>%.2f ₽</b>.\nШлюз: %s",
		invoice.RequestedAmount, gatewayDisplayName(invoice.Gateway))

	n.editOrSend(ctx, invoice, text)
	n.notifyAdmins(ctx, n.printer.Sprintf(
		"💰 Оплата: <b>%.2f ₽</b> (комиссия %.2f ₽)\nШлюз: %s\nПользователь: %s (<code>%d</code>)\nСчёт: <code>%s</code>",
		invoice.RequestedAmount, invoice.FeeAmount,
		gatewayDisplayName(invoice.Gateway), n.usernameOf(ctx, invoice.UserID),
		invoice.UserID, invoice.InvoiceID))
}

// InvoiceExpired сообщает плательщику, что счёт погашен по сроку.
func (n *TelegramNotifier) InvoiceExpired(ctx context.Context, invoice *database.Invoice) {
	text := n.printer.Sprintf(
		"⌛ Счёт на <b>%.2f ₽</b> истёк.\nВы можете создать новый в любой момент.",
		invoice.TotalAmount)

	n.editOrSend(ctx, invoice, text)
}

// DailyRevenueReport отправляет администраторам сводку выручки по шлюзам.
func (n *TelegramNotifier) DailyRevenueReport(ctx context.Context, stats []database.GatewayStats) {
	if len(stats) == 0 {
		n.notifyAdmins(ctx, "📊 Выручка за сутки: оплат не было.")
		return
	}

	text := "📊 Выручка за сутки:\n"
	var total float64
	for _, s := range stats {
		text += n.printer.Sprintf("\n%s — %d оплат, <b>%.2f ₽</b> (комиссии %.2f ₽)",
			gatewayDisplayName(s.Gateway), s.PaidCount, s.TotalAmount, s.TotalFees)
		total += s.TotalAmount
	}
	text += n.printer.Sprintf("\n\nИтого: <b>%.2f ₽</b>", total)

	n.notifyAdmins(ctx, text)
}

func (n *TelegramNotifier) usernameOf(ctx context.Context, telegramID int64) string {
	user, err := n.users.FindByTelegramID(ctx, telegramID)
	if err != nil || user == nil {
		return utils.UsernameForDisplay(nil)
	}
	return utils.UsernameForDisplay(user.Username)
}

func (n *TelegramNotifier) editOrSend(ctx context.Context, invoice *database.Invoice, text string) {
	chatID := invoice.UserID
	if invoice.ChatID != nil {
		chatID = *invoice.ChatID
	}

	if invoice.MessageID != nil {
		_, err := n.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: *invoice.MessageID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err == nil {
			return
		}
		slog.Warn("failed to edit invoice message, sending a new one",
			"chat_id", chatID, "message_id", *invoice.MessageID, "error", err)
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		slog.Error("failed to notify user", "chat_id", chatID, "error", err)
	}
}

func (n *TelegramNotifier) notifyAdmins(ctx context.Context, text string) {
	for _, adminID := range config.AdminTelegramIds() {
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    adminID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			slog.Error(fmt.Sprintf("failed to notify admin %d", adminID), "error", err)
		}
	}
}
