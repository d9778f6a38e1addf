package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Идентификаторы платёжных шлюзов. Дублируются строковыми значениями в
// internal/database, чтобы config не тянул за собой слой хранения.
const (
	GatewayLolz       = "lolz"
	GatewayCryptoBot  = "cryptobot"
	GatewayXRocket    = "xrocket"
	GatewayCrystalPay = "crystalpay"
	GatewayRobokassa  = "robokassa"
)

// Gateways перечисляет все известные шлюзы в стабильном порядке.
var Gateways = []string{GatewayLolz, GatewayCryptoBot, GatewayXRocket, GatewayCrystalPay, GatewayRobokassa}

type config struct {
	telegramToken    string
	adminTelegramIds []int64
	databaseURL      string
	healthCheckPort  int

	minPaymentAmount float64
	paymentTimeout   time.Duration
	checkInterval    time.Duration
	checkBackoff     time.Duration
	feePercents      map[string]float64

	lolzAPIKey string
	lolzUserID int64

	cryptoBotAPIKey string
	cryptoBotAssets []string

	xrocketAPIKey string

	crystalPayLogin  string
	crystalPaySecret string

	robokassaMerchantLogin string
	robokassaPassword1     string
	robokassaPassword2     string
	robokassaTestMode      bool
	robokassaResultPath    string
	robokassaFailPath      string
	robokassaCheckPath     string
}

var conf config

func TelegramToken() string {
	return conf.telegramToken
}

func AdminTelegramIds() []int64 {
	return conf.adminTelegramIds
}

func DatabaseURL() string {
	return conf.databaseURL
}

func GetHealthCheckPort() int {
	return conf.healthCheckPort
}

// MinPaymentAmount — минимальная сумма пополнения в рублях.
func MinPaymentAmount() float64 {
	return conf.minPaymentAmount
}

// PaymentTimeout — время жизни выставленного счёта.
func PaymentTimeout() time.Duration {
	return conf.paymentTimeout
}

func CheckInterval() time.Duration {
	return conf.checkInterval
}

func CheckBackoff() time.Duration {
	return conf.checkBackoff
}

// FeePercent возвращает комиссию шлюза в процентах (0 если не задана).
func FeePercent(gateway string) float64 {
	return conf.feePercents[gateway]
}

func LolzAPIKey() string {
	return conf.lolzAPIKey
}

func LolzUserID() int64 {
	return conf.lolzUserID
}

func CryptoBotAPIKey() string {
	return conf.cryptoBotAPIKey
}

// CryptoBotAssets — активы, предлагаемые пользователю для оплаты.
func CryptoBotAssets() []string {
	return conf.cryptoBotAssets
}

func XRocketAPIKey() string {
	return conf.xrocketAPIKey
}

func CrystalPayLogin() string {
	return conf.crystalPayLogin
}

func CrystalPaySecret() string {
	return conf.crystalPaySecret
}

func RobokassaMerchantLogin() string {
	return conf.robokassaMerchantLogin
}

func RobokassaPassword1() string {
	return conf.robokassaPassword1
}

func RobokassaPassword2() string {
	return conf.robokassaPassword2
}

func IsRobokassaTestMode() bool {
	return conf.robokassaTestMode
}

func RobokassaResultPath() string {
	return conf.robokassaResultPath
}

func RobokassaFailPath() string {
	return conf.robokassaFailPath
}

func RobokassaCheckPath() string {
	return conf.robokassaCheckPath
}

// Отсутствие учётных данных отключает шлюз, это не ошибка конфигурации.

func IsLolzEnabled() bool {
	return conf.lolzAPIKey != "" && conf.lolzUserID != 0
}

func IsCryptoBotEnabled() bool {
	return conf.cryptoBotAPIKey != ""
}

func IsXRocketEnabled() bool {
	return conf.xrocketAPIKey != ""
}

func IsCrystalPayEnabled() bool {
	return conf.crystalPayLogin != "" && conf.crystalPaySecret != ""
}

func IsRobokassaEnabled() bool {
	return conf.robokassaMerchantLogin != "" && conf.robokassaPassword1 != "" && conf.robokassaPassword2 != ""
}

// IsGatewayEnabled проверяет шлюз по строковому идентификатору.
func IsGatewayEnabled(gateway string) bool {
	switch gateway {
	case GatewayLolz:
		return IsLolzEnabled()
	case GatewayCryptoBot:
		return IsCryptoBotEnabled()
	case GatewayXRocket:
		return IsXRocketEnabled()
	case GatewayCrystalPay:
		return IsCrystalPayEnabled()
	case GatewayRobokassa:
		return IsRobokassaEnabled()
	default:
		return false
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Panicf("env %q not set", key)
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Panicf("invalid int in %q: %v", key, err)
	}
	return i
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Panicf("invalid float in %q: %v", key, err)
	}
	return f
}

func envStringDefault(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

// parseFeePercents читает комиссии шлюзов из FEE_PERCENT_<GATEWAY>.
// Комиссия нужна слою создания счёта; цикл сверки её не пересчитывает.
func parseFeePercents() map[string]float64 {
	fees := make(map[string]float64)
	for _, gateway := range Gateways {
		key := "FEE_PERCENT_" + strings.ToUpper(gateway)
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Panicf("invalid float in %q: %v", key, err)
		}
		if f < 0 {
			log.Panicf("negative fee percent in %q", key)
		}
		fees[gateway] = f
	}
	return fees
}

func parseAdminIds() []int64 {
	v := os.Getenv("ADMIN_TELEGRAM_IDS")
	if v == "" {
		panic("ADMIN_TELEGRAM_IDS .env variable not set")
	}
	var ids []int64
	for _, idStr := range strings.Split(v, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			log.Panicf("invalid telegram ID in ADMIN_TELEGRAM_IDS: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func InitConfig() {
	if os.Getenv("DISABLE_ENV_FILE") != "true" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env loaded:", err)
		}
	}

	conf.telegramToken = mustEnv("TELEGRAM_TOKEN")
	conf.adminTelegramIds = parseAdminIds()
	conf.databaseURL = mustEnv("DATABASE_URL")
	conf.healthCheckPort = envIntDefault("HEALTH_CHECK_PORT", 8080)

	conf.minPaymentAmount = envFloatDefault("MIN_PAYMENT_AMOUNT", 10)
	conf.paymentTimeout = time.Duration(envIntDefault("PAYMENT_TIMEOUT_SECONDS", 900)) * time.Second
	conf.checkInterval = time.Duration(envIntDefault("CHECK_INTERVAL_SECONDS", 15)) * time.Second
	conf.checkBackoff = time.Duration(envIntDefault("CHECK_BACKOFF_SECONDS", 30)) * time.Second
	conf.feePercents = parseFeePercents()

	conf.lolzAPIKey = os.Getenv("LOLZ_API_KEY")
	if lolzUserID := os.Getenv("LOLZ_USER_ID"); lolzUserID != "" {
		id, err := strconv.ParseInt(lolzUserID, 10, 64)
		if err != nil {
			log.Panicf("invalid LOLZ_USER_ID: %v", err)
		}
		conf.lolzUserID = id
	}

	conf.cryptoBotAPIKey = os.Getenv("CRYPTOBOT_API_KEY")
	conf.cryptoBotAssets = func() []string {
		v := envStringDefault("CRYPTOBOT_ASSETS", "USDT,TON,BTC,ETH")
		var assets []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				assets = append(assets, a)
			}
		}
		return assets
	}()

	conf.xrocketAPIKey = os.Getenv("XROCKET_API_KEY")

	conf.crystalPayLogin = os.Getenv("CRYSTALPAY_LOGIN")
	conf.crystalPaySecret = os.Getenv("CRYSTALPAY_SECRET")

	conf.robokassaMerchantLogin = os.Getenv("ROBOKASSA_MERCHANT_LOGIN")
	conf.robokassaPassword1 = os.Getenv("ROBOKASSA_PASSWORD1")
	conf.robokassaPassword2 = os.Getenv("ROBOKASSA_PASSWORD2")
	conf.robokassaTestMode = envBool("ROBOKASSA_TEST_MODE")
	conf.robokassaResultPath = envStringDefault("ROBOKASSA_RESULT_PATH", "/robokassa/result")
	conf.robokassaFailPath = envStringDefault("ROBOKASSA_FAIL_PATH", "/robokassa/fail")
	conf.robokassaCheckPath = envStringDefault("ROBOKASSA_CHECK_PATH", "/robokassa/check")

	for _, gateway := range Gateways {
		if IsGatewayEnabled(gateway) {
			slog.Info("Payment gateway enabled", "gateway", gateway, "feePercent", FeePercent(gateway))
		} else {
			slog.Info("Payment gateway disabled, credentials not set", "gateway", gateway)
		}
	}
}
