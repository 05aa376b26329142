package data

import (
	"context"
	"fmt"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/shopspring/decimal"
)

// priceFeedClient 价格源 HTTP 客户端（实现 biz.PriceFeed）
type priceFeedClient struct {
	client *http.Client
	log    *log.Helper
}

// conversionRateReply 价格源响应
type conversionRateReply struct {
	Rate string `json:"rate"`  // 一单位结算资产的储值价格
	AsOf int64  `json:"as_of"` // 报价时间（Unix 秒）
}

// NewPriceFeed 创建价格源客户端
func NewPriceFeed(c *conf.Bootstrap, logger log.Logger) (biz.PriceFeed, error) {
	if c == nil || c.Juice == nil || c.Juice.PriceFeed == nil || c.Juice.PriceFeed.Endpoint == "" {
		return nil, fmt.Errorf("price feed config is nil or missing endpoint")
	}
	pf := c.Juice.PriceFeed

	timeout := pf.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client, err := http.NewClient(
		context.Background(),
		http.WithEndpoint(pf.Endpoint),
		http.WithTimeout(timeout),
		http.WithMiddleware(
			recovery.Recovery(),
		),
	)
	if err != nil {
		return nil, err
	}

	return &priceFeedClient{
		client: client,
		log:    log.NewHelper(logger),
	}, nil
}

// GetConversionRate 获取当前报价
//
// 不做缓存：结算频率低，陈旧价格的风险远大于一次 HTTP 调用的成本。
func (p *priceFeedClient) GetConversionRate(ctx context.Context) (*biz.Quote, error) {
	var out conversionRateReply
	if err := p.client.Invoke(ctx, "GET", "/v1/rates/juice", nil, &out); err != nil {
		p.log.Errorf("GetConversionRate failed: error=%v", err)
		return nil, err
	}

	rate, err := decimal.NewFromString(out.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate from price feed: %q: %w", out.Rate, err)
	}

	return &biz.Quote{
		Rate: rate,
		AsOf: time.Unix(out.AsOf, 0),
	}, nil
}
