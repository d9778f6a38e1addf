package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// **Feature: кэш курсов, Property 1**
// Записанный курс читается до истечения TTL и пропадает после.
func TestRateCacheExpiry(t *testing.T) {
	c := NewRateCache(50 * time.Millisecond)

	rate := decimal.NewFromFloat(320.5)
	c.Set("TON", rate)

	got, ok := c.Get("TON")
	if !ok {
		t.Fatal("expected fresh rate to be present")
	}
	if !got.Equal(rate) {
		t.Errorf("got %s, want %s", got, rate)
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok = c.Get("TON"); ok {
		t.Error("expected rate to expire after TTL")
	}
}

func TestRateCacheMiss(t *testing.T) {
	c := NewRateCache(time.Minute)
	if _, ok := c.Get("BTC"); ok {
		t.Error("expected miss for unknown asset")
	}
}

func TestStateCachePerKeyTTL(t *testing.T) {
	c := NewStateCache()

	c.SetString("pay_state_1", "payment:pending", 60)
	if v, ok := c.GetString("pay_state_1"); !ok || v != "payment:pending" {
		t.Errorf("got %q, %v; want stored state", v, ok)
	}

	c.Delete("pay_state_1")
	if _, ok := c.GetString("pay_state_1"); ok {
		t.Error("expected state to be gone after delete")
	}
}

func TestRateCacheDelete(t *testing.T) {
	c := NewRateCache(time.Minute)
	c.Set("USDT", decimal.NewFromInt(1))
	c.Delete("USDT")
	if _, ok := c.Get("USDT"); ok {
		t.Error("expected rate to be gone after delete")
	}
}
