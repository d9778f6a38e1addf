package cache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type rateItem struct {
	Value     decimal.Decimal
	ExpiresAt time.Time
}

// RateCache хранит курсы обмена по ключу актива. Курсы устаревают спустя
// ttl, чтобы шлюзы не дёргали внешние API на каждый счёт.
type RateCache struct {
	rates map[string]rateItem
	mutex sync.RWMutex
	ttl   time.Duration
}

func NewRateCache(ttl time.Duration) *RateCache {
	c := &RateCache{
		rates: make(map[string]rateItem),
		ttl:   ttl,
	}
	go c.cleanupExpired()
	return c
}

func (c *RateCache) Set(asset string, rate decimal.Decimal) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rates[asset] = rateItem{
		Value:     rate,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

func (c *RateCache) Get(asset string) (decimal.Decimal, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	item, found := c.rates[asset]
	if !found || time.Now().After(item.ExpiresAt) {
		return decimal.Zero, false
	}
	return item.Value, true
}

func (c *RateCache) Delete(asset string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.rates, asset)
}

func (c *RateCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		now := time.Now()
		c.mutex.Lock()
		for k, v := range c.rates {
			if now.After(v.ExpiresAt) {
				delete(c.rates, k)
			}
		}
		c.mutex.Unlock()
	}
}

type stringItem struct {
	Value     string
	ExpiresAt time.Time
}

// StateCache хранит строковые состояния диалогов с TTL на каждую запись.
// Забытый диалог просто истекает.
type StateCache struct {
	data  map[string]stringItem
	mutex sync.RWMutex
}

func NewStateCache() *StateCache {
	c := &StateCache{
		data: make(map[string]stringItem),
	}
	go c.cleanupExpired()
	return c
}

func (c *StateCache) SetString(key string, value string, ttl int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = stringItem{
		Value:     value,
		ExpiresAt: time.Now().Add(time.Duration(ttl) * time.Second),
	}
}

func (c *StateCache) GetString(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	item, found := c.data[key]
	if !found || time.Now().After(item.ExpiresAt) {
		return "", false
	}
	return item.Value, true
}

func (c *StateCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.data, key)
}

func (c *StateCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		now := time.Now()
		c.mutex.Lock()
		for k, v := range c.data {
			if now.After(v.ExpiresAt) {
				delete(c.data, k)
			}
		}
		c.mutex.Unlock()
	}
}
