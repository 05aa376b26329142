package data

import (
	"testing"
	"time"

	"juice-service/internal/biz"

	"github.com/shopspring/decimal"
)

func TestBalanceCacheRoundTripKeepsLifetimeCounters(t *testing.T) {
	expires := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	b := &biz.Balance{
		UID:               "user-1",
		Balance:           decimal.RequireFromString("120.50"),
		LifetimePurchased: decimal.RequireFromString("500.00"),
		LifetimeSpent:     decimal.RequireFromString("300.25"),
		LifetimeCashedOut: decimal.RequireFromString("79.25"),
		LastActivityAt:    time.Now().Truncate(time.Second),
		ExpiresAt:         &expires,
	}

	payload, err := encodeBalanceCache(b)
	if err != nil {
		t.Fatalf("encodeBalanceCache returned error: %v", err)
	}
	got, ok := decodeBalanceCache(payload, "user-1")
	if !ok {
		t.Fatal("decodeBalanceCache rejected a freshly encoded entry")
	}

	if !got.Balance.Equal(b.Balance) {
		t.Fatalf("balance = %s, want %s", got.Balance, b.Balance)
	}
	if !got.LifetimePurchased.Equal(b.LifetimePurchased) {
		t.Fatalf("lifetime purchased = %s, want %s", got.LifetimePurchased, b.LifetimePurchased)
	}
	if !got.LifetimeSpent.Equal(b.LifetimeSpent) {
		t.Fatalf("lifetime spent = %s, want %s", got.LifetimeSpent, b.LifetimeSpent)
	}
	if !got.LifetimeCashedOut.Equal(b.LifetimeCashedOut) {
		t.Fatalf("lifetime cashed out = %s, want %s", got.LifetimeCashedOut, b.LifetimeCashedOut)
	}
	if !got.LastActivityAt.Equal(b.LastActivityAt) {
		t.Fatalf("last activity = %s, want %s", got.LastActivityAt, b.LastActivityAt)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expires at = %v, want %s", got.ExpiresAt, expires)
	}
}

func TestBalanceCacheDecodeTreatsBadEntriesAsMiss(t *testing.T) {
	// 只存余额数字的条目（旧缓存格式）必须回源，否则累计计数器会丢
	if _, ok := decodeBalanceCache([]byte("120.50"), "user-1"); ok {
		t.Fatal("bare decimal entry must be treated as a cache miss")
	}
	if _, ok := decodeBalanceCache([]byte("not json"), "user-1"); ok {
		t.Fatal("corrupt entry must be treated as a cache miss")
	}
	if _, ok := decodeBalanceCache([]byte(`{"UID":"someone-else","Balance":"1"}`), "user-1"); ok {
		t.Fatal("entry keyed for another uid must be treated as a cache miss")
	}
}
