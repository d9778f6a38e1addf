package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/robfig/cron/v3"

	"stars-tg-shop-bot/internal/cache"
	"stars-tg-shop-bot/internal/config"
	"stars-tg-shop-bot/internal/database"
	"stars-tg-shop-bot/internal/gateway"
	"stars-tg-shop-bot/internal/gateway/cryptobot"
	"stars-tg-shop-bot/internal/gateway/crystalpay"
	"stars-tg-shop-bot/internal/gateway/lolz"
	"stars-tg-shop-bot/internal/gateway/xrocket"
	"stars-tg-shop-bot/internal/handler"
	"stars-tg-shop-bot/internal/notification"
	"stars-tg-shop-bot/internal/payment"
	"stars-tg-shop-bot/internal/robokassa"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config.InitConfig()
	slog.Info("Application starting", "version", Version, "commit", Commit, "buildDate", BuildDate)

	if err := database.RunMigrations(config.DatabaseURL()); err != nil {
		panic(err)
	}

	pool, err := initDatabase(ctx, config.DatabaseURL())
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	invoiceRepository := database.NewInvoiceRepository(pool)
	userRepository := database.NewUserRepository(pool)

	adapters := buildAdapters()
	if len(adapters) == 0 {
		panic("no payment gateway is configured")
	}

	b, err := bot.New(config.TelegramToken(), bot.WithWorkers(3))
	if err != nil {
		panic(err)
	}

	notifier := notification.NewTelegramNotifier(b, userRepository)
	paymentService := payment.NewPaymentService(invoiceRepository, userRepository, adapters, notifier)

	checker := payment.NewChecker(invoiceRepository, adapters, notifier)
	go checker.Run(ctx)

	states := cache.NewStateCache()
	h := handler.NewHandler(paymentService, userRepository, states)

	_, err = b.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Начать работу с ботом"},
			{Command: "balance", Description: "Показать баланс"},
			{Command: "cancel", Description: "Отменить неоплаченный счёт"},
		},
	})
	if err != nil {
		panic(err)
	}

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.StartCommandHandler)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/balance", bot.MatchTypeExact, h.BalanceCommandHandler)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, h.CancelCommandHandler)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackTopUp, bot.MatchTypeExact, h.TopUpCallbackHandler)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackPay, bot.MatchTypePrefix, h.PayCallbackHandler)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackCancel, bot.MatchTypeExact, h.CancelCallbackHandler)
	b.RegisterHandlerMatchFunc(h.IsAwaitingAmount, h.AmountInputHandler)

	mux := http.NewServeMux()
	mux.Handle("/healthcheck", healthHandler(pool))

	if config.IsRobokassaEnabled() {
		robokassaHandler := robokassa.NewHandler(paymentService)
		mux.Handle(config.RobokassaResultPath(), robokassaHandler.ResultHandler())
		mux.Handle(config.RobokassaFailPath(), robokassaHandler.FailHandler())
		mux.Handle(config.RobokassaCheckPath(), robokassaHandler.CheckHandler())
		slog.Info("Robokassa callback handlers registered",
			"result", config.RobokassaResultPath(),
			"fail", config.RobokassaFailPath(),
			"check", config.RobokassaCheckPath())
	}

	cronScheduler := setupRevenueReport(ctx, invoiceRepository, notifier)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GetHealthCheckPort()),
		Handler: mux,
	}
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	slog.Info("Bot is starting...")
	b.Start(ctx)

	log.Println("Shutting down server…")
	shutdownCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// buildAdapters собирает адаптеры только для шлюзов с настроенными
// учётными данными.
func buildAdapters() map[string]gateway.Adapter {
	adapters := make(map[string]gateway.Adapter)

	if config.IsLolzEnabled() {
		adapters[config.GatewayLolz] = lolz.NewClient(config.LolzAPIKey(), config.LolzUserID())
	}
	if config.IsCryptoBotEnabled() {
		client := cryptobot.NewClient(config.CryptoBotAPIKey())
		adapters[config.GatewayCryptoBot] = client
		logCryptoBotAssets(client)
	}
	if config.IsXRocketEnabled() {
		adapters[config.GatewayXRocket] = xrocket.NewClient(config.XRocketAPIKey())
	}
	if config.IsCrystalPayEnabled() {
		adapters[config.GatewayCrystalPay] = crystalpay.NewClient(config.CrystalPayLogin(), config.CrystalPaySecret())
	}
	if config.IsRobokassaEnabled() {
		adapters[config.GatewayRobokassa] = robokassa.NewClient(
			config.RobokassaMerchantLogin(), config.RobokassaPassword1(), config.IsRobokassaTestMode())
	}

	return adapters
}

// logCryptoBotAssets пишет в лог активы, для которых сейчас есть курс к
// рублю. Пустой список означает проблему с настройкой или курсами.
func logCryptoBotAssets(client *cryptobot.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	assets, err := client.SupportedAssets(ctx)
	if err != nil {
		slog.Warn("Failed to fetch CryptoBot exchange rates", "error", err)
		return
	}
	if len(assets) == 0 {
		slog.Warn("No configured CryptoBot asset has a RUB rate", "configured", config.CryptoBotAssets())
		return
	}
	slog.Info("CryptoBot assets available", "assets", assets)
}

// setupRevenueReport шлёт администраторам ежедневную сводку выручки.
func setupRevenueReport(ctx context.Context, invoiceRepository *database.InvoiceRepository, notifier *notification.TelegramNotifier) *cron.Cron {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in revenue report", "panic", r)
			}
		}()

		reportCtx, reportCancel := context.WithTimeout(ctx, time.Minute)
		defer reportCancel()

		stats, err := invoiceRepository.PaymentStats(reportCtx, time.Now().Add(-24*time.Hour))
		if err != nil {
			slog.Error("Error building revenue report", "error", err)
			return
		}
		notifier.DailyRevenueReport(reportCtx, stats)
	})
	if err != nil {
		panic(err)
	}

	return c
}

func healthHandler(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		db := "ok"

		dbCtx, dbCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer dbCancel()
		if err := pool.Ping(dbCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			status = "fail"
			db = "error: " + err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"%s","db":"%s","time":"%s","version":"%s","commit":"%s","buildDate":"%s"}`,
			status, db, time.Now().Format(time.RFC3339), Version, Commit, BuildDate)
	})
}
