package config

import (
	"fmt"
	"os"
	"testing"
	"testing/quick"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DISABLE_ENV_FILE", "true")
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("ADMIN_TELEGRAM_IDS", "42")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
}

// Отсутствие учётных данных должно отключать шлюз, а не ронять процесс.
func TestGatewayDisabledWithoutCredentials(t *testing.T) {
	setBaseEnv(t)
	for _, key := range []string{
		"LOLZ_API_KEY", "LOLZ_USER_ID", "CRYPTOBOT_API_KEY", "XROCKET_API_KEY",
		"CRYSTALPAY_LOGIN", "CRYSTALPAY_SECRET",
		"ROBOKASSA_MERCHANT_LOGIN", "ROBOKASSA_PASSWORD1", "ROBOKASSA_PASSWORD2",
	} {
		os.Unsetenv(key)
	}

	InitConfig()

	for _, gateway := range Gateways {
		if IsGatewayEnabled(gateway) {
			t.Errorf("gateway %q enabled without credentials", gateway)
		}
	}
}

func TestGatewayEnabledWithCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOLZ_API_KEY", "key")
	t.Setenv("LOLZ_USER_ID", "123")
	t.Setenv("CRYPTOBOT_API_KEY", "key")
	t.Setenv("XROCKET_API_KEY", "key")
	t.Setenv("CRYSTALPAY_LOGIN", "login")
	t.Setenv("CRYSTALPAY_SECRET", "secret")
	t.Setenv("ROBOKASSA_MERCHANT_LOGIN", "shop")
	t.Setenv("ROBOKASSA_PASSWORD1", "p1")
	t.Setenv("ROBOKASSA_PASSWORD2", "p2")

	InitConfig()

	for _, gateway := range Gateways {
		if !IsGatewayEnabled(gateway) {
			t.Errorf("gateway %q disabled with credentials present", gateway)
		}
	}
}

// Частичные учётные данные CrystalPay (логин без секрета) не включают шлюз.
func TestCrystalPayPartialCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CRYSTALPAY_LOGIN", "login")
	os.Unsetenv("CRYSTALPAY_SECRET")

	InitConfig()

	if IsCrystalPayEnabled() {
		t.Fatal("crystalpay enabled with login but no secret")
	}
}

// **Property: комиссия, заданная через FEE_PERCENT_<GATEWAY>, читается
// обратно без искажений для любого неотрицательного значения.**
func TestFeePercentRoundTrip(t *testing.T) {
	setBaseEnv(t)

	f := func(raw uint16) bool {
		fee := float64(raw%2000) / 100 // 0.00 .. 19.99 процентов
		t.Setenv("FEE_PERCENT_LOLZ", fmt.Sprintf("%v", fee))
		InitConfig()
		return FeePercent(GatewayLolz) == fee
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}

func TestFeePercentDefaultsToZero(t *testing.T) {
	setBaseEnv(t)
	os.Unsetenv("FEE_PERCENT_XROCKET")

	InitConfig()

	if got := FeePercent(GatewayXRocket); got != 0 {
		t.Fatalf("FeePercent = %v, want 0", got)
	}
}

func TestPaymentDefaults(t *testing.T) {
	setBaseEnv(t)
	for _, key := range []string{"MIN_PAYMENT_AMOUNT", "PAYMENT_TIMEOUT_SECONDS", "CHECK_INTERVAL_SECONDS", "CHECK_BACKOFF_SECONDS"} {
		os.Unsetenv(key)
	}

	InitConfig()

	if MinPaymentAmount() != 10 {
		t.Errorf("MinPaymentAmount = %v, want 10", MinPaymentAmount())
	}
	if PaymentTimeout().Seconds() != 900 {
		t.Errorf("PaymentTimeout = %v, want 900s", PaymentTimeout())
	}
	if CheckInterval().Seconds() != 15 {
		t.Errorf("CheckInterval = %v, want 15s", CheckInterval())
	}
	if CheckBackoff().Seconds() != 30 {
		t.Errorf("CheckBackoff = %v, want 30s", CheckBackoff())
	}
}

func TestAdminIdsParsing(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ADMIN_TELEGRAM_IDS", "1, 2,3")

	InitConfig()

	ids := AdminTelegramIds()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("AdminTelegramIds = %v, want [1 2 3]", ids)
	}
}
