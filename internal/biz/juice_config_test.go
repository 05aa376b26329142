package biz

import (
	"testing"
	"time"

	"juice-service/internal/conf"

	"github.com/shopspring/decimal"
)

func TestNewJuiceConfigDefaults(t *testing.T) {
	config := NewJuiceConfig(nil)

	if config.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", config.MaxRetries)
	}
	if config.BatchSize != 50 {
		t.Fatalf("batch size = %d, want 50", config.BatchSize)
	}
	if config.CashOutHoldDelay != 24*time.Hour {
		t.Fatalf("hold delay = %s, want 24h", config.CashOutHoldDelay)
	}
	if config.RetentionWindow != 180*24*time.Hour {
		t.Fatalf("retention window = %s, want 180d", config.RetentionWindow)
	}
	if config.SettlementDelay != 0 {
		t.Fatalf("settlement delay = %s, want 0 (instant crediting)", config.SettlementDelay)
	}
	if config.MaxQuoteAge != 5*time.Minute {
		t.Fatalf("max quote age = %s, want 5m", config.MaxQuoteAge)
	}
}

func TestNewJuiceConfigOverrides(t *testing.T) {
	bc := &conf.Bootstrap{
		Juice: &conf.Juice{
			SettlementDelay:  conf.Duration(72 * time.Hour),
			CashOutHoldDelay: conf.Duration(48 * time.Hour),
			MaxRetries:       7,
			BatchSize:        100,
			RetentionWindow:  conf.Duration(90 * 24 * time.Hour),
			DefaultChainId:   8453,
			PriceFeed: &conf.PriceFeed{
				MaxQuoteAge: conf.Duration(time.Minute),
				RateMin:     "0.5",
				RateMax:     "100",
			},
		},
	}

	config := NewJuiceConfig(bc)
	if config.SettlementDelay != 72*time.Hour {
		t.Fatalf("settlement delay = %s", config.SettlementDelay)
	}
	if config.CashOutHoldDelay != 48*time.Hour {
		t.Fatalf("hold delay = %s", config.CashOutHoldDelay)
	}
	if config.MaxRetries != 7 {
		t.Fatalf("max retries = %d", config.MaxRetries)
	}
	if config.BatchSize != 100 {
		t.Fatalf("batch size = %d", config.BatchSize)
	}
	if config.DefaultChainID != 8453 {
		t.Fatalf("default chain = %d", config.DefaultChainID)
	}
	if config.MaxQuoteAge != time.Minute {
		t.Fatalf("max quote age = %s", config.MaxQuoteAge)
	}
	if !config.RateMin.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("rate min = %s", config.RateMin)
	}
	if !config.RateMax.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("rate max = %s", config.RateMax)
	}
}

func TestNewJuiceConfigIgnoresInvalidRates(t *testing.T) {
	bc := &conf.Bootstrap{
		Juice: &conf.Juice{
			PriceFeed: &conf.PriceFeed{
				RateMin: "not-a-number",
				RateMax: "-5",
			},
		},
	}

	config := NewJuiceConfig(bc)
	if !config.RateMin.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("invalid rate_min must keep the default, got %s", config.RateMin)
	}
	if !config.RateMax.Equal(decimal.RequireFromString("1000000")) {
		t.Fatalf("negative rate_max must keep the default, got %s", config.RateMax)
	}
}
