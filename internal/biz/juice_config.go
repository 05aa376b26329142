package biz

import (
	"time"

	"juice-service/internal/conf"

	"github.com/shopspring/decimal"
)

// 默认值：未配置时采用
var (
	defaultMaxRetries      = 5
	defaultBatchSize       = 50
	defaultHoldDelay       = 24 * time.Hour
	defaultRetentionWindow = 180 * 24 * time.Hour
	defaultMaxQuoteAge     = 5 * time.Minute
	defaultRateMin         = decimal.RequireFromString("0.01")
	defaultRateMax         = decimal.RequireFromString("1000000")
)

// JuiceConfig 账本与结算配置
type JuiceConfig struct {
	SettlementDelay  time.Duration // 充值入账延迟（0 为即时入账）
	CashOutHoldDelay time.Duration // 提现持有期
	MaxRetries       int           // 结算最大重试次数
	BatchSize        int           // 批处理单次最大记录数
	RetentionWindow  time.Duration // 余额保留窗口
	DefaultChainID   int64         // 默认结算链
	MaxQuoteAge      time.Duration // 报价最大可用时长
	RateMin          decimal.Decimal
	RateMax          decimal.Decimal
}

// NewJuiceConfig 从配置创建 JuiceConfig
func NewJuiceConfig(c *conf.Bootstrap) *JuiceConfig {
	config := &JuiceConfig{
		MaxRetries:       defaultMaxRetries,
		BatchSize:        defaultBatchSize,
		CashOutHoldDelay: defaultHoldDelay,
		RetentionWindow:  defaultRetentionWindow,
		MaxQuoteAge:      defaultMaxQuoteAge,
		RateMin:          defaultRateMin,
		RateMax:          defaultRateMax,
	}
	if c == nil || c.Juice == nil {
		return config
	}
	j := c.Juice
	config.SettlementDelay = j.SettlementDelay.AsDuration()
	config.DefaultChainID = j.DefaultChainId
	if j.CashOutHoldDelay.AsDuration() > 0 {
		config.CashOutHoldDelay = j.CashOutHoldDelay.AsDuration()
	}
	if j.MaxRetries > 0 {
		config.MaxRetries = j.MaxRetries
	}
	if j.BatchSize > 0 {
		config.BatchSize = j.BatchSize
	}
	if j.RetentionWindow.AsDuration() > 0 {
		config.RetentionWindow = j.RetentionWindow.AsDuration()
	}
	if j.PriceFeed != nil {
		if j.PriceFeed.MaxQuoteAge.AsDuration() > 0 {
			config.MaxQuoteAge = j.PriceFeed.MaxQuoteAge.AsDuration()
		}
		if v, err := decimal.NewFromString(j.PriceFeed.RateMin); err == nil && v.IsPositive() {
			config.RateMin = v
		}
		if v, err := decimal.NewFromString(j.PriceFeed.RateMax); err == nil && v.IsPositive() {
			config.RateMax = v
		}
	}
	return config
}
