package biz

import (
	"context"
	"time"

	juiceErrors "juice-service/internal/errors"

	"github.com/shopspring/decimal"
)

// Quote 实时报价
//
// Rate 为一单位结算资产的储值（法币）价格；
// 换算：cryptoAmount = juiceAmount / Rate。
type Quote struct {
	Rate decimal.Decimal
	AsOf time.Time
}

// PriceFeed 价格源接口
type PriceFeed interface {
	GetConversionRate(ctx context.Context) (*Quote, error)
}

// ValidateQuote 校验报价可用性：过期时间与合理区间。
// 校验失败的结算尝试走正常的重试/失败路径，不会中断整批。
func ValidateQuote(q *Quote, now time.Time, maxAge time.Duration, rateMin, rateMax decimal.Decimal) error {
	age := now.Sub(q.AsOf)
	if age > maxAge {
		return juiceErrors.ErrStaleQuote(age.String())
	}
	if q.Rate.LessThan(rateMin) || q.Rate.GreaterThan(rateMax) {
		return juiceErrors.ErrQuoteOutOfRange(q.Rate.String())
	}
	return nil
}
