package biz

import (
	"context"
	"time"

	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// ExpiredBalance 被清零的余额快照（用于审计落库）
type ExpiredBalance struct {
	UID            string
	Amount         decimal.Decimal
	LastActivityAt time.Time
}

// SweepResult 过期清理结果
type SweepResult struct {
	Expired     int             // 本轮清零余额数
	Failed      int             // 本轮失败数
	TotalAmount decimal.Decimal // 本轮清零总金额
}

// ExpirationRepo 过期清理数据层接口（定义在 biz 层）
type ExpirationRepo interface {
	// ListExpiredUIDs 查询余额为正且最后活动时间早于 cutoff 的用户
	ListExpiredUIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// ExpireBalance 单事务：余额清零 + 写入审计记录；
	// 余额在认领前发生变动（不再满足过期条件）时返回 (nil, nil)
	ExpireBalance(ctx context.Context, uid string, cutoff time.Time) (*ExpiredBalance, error)
}

// ExpirationUseCase 余额过期清理业务逻辑
type ExpirationUseCase struct {
	repo    ExpirationRepo
	conf    *JuiceConfig
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewExpirationUseCase 创建过期清理 UseCase
func NewExpirationUseCase(repo ExpirationRepo, conf *JuiceConfig, logger log.Logger) *ExpirationUseCase {
	return &ExpirationUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// ExpireInactiveBalances 清零超出保留窗口未活动的余额
//
// cutoff 在本轮开始时取定，整批使用同一条分界线；
// 清零与审计落库同一事务，单条失败只计数不中断。
func (uc *ExpirationUseCase) ExpireInactiveBalances(ctx context.Context, batchSize int) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = uc.conf.BatchSize
	}
	cutoff := time.Now().Add(-uc.conf.RetentionWindow)
	result := &SweepResult{TotalAmount: decimal.Zero}

	uids, err := uc.repo.ListExpiredUIDs(ctx, cutoff, batchSize)
	if err != nil {
		return nil, err
	}

	for _, uid := range uids {
		expired, err := uc.repo.ExpireBalance(ctx, uid, cutoff)
		if err != nil {
			uc.log.Errorf("ExpireBalance failed: uid=%s, error=%v", uid, err)
			result.Failed++
			continue
		}
		if expired == nil {
			// 查询后余额发生了活动，不再满足过期条件
			continue
		}
		result.Expired++
		result.TotalAmount = result.TotalAmount.Add(expired.Amount)
		if uc.metrics != nil {
			uc.metrics.ExpirationTotal.Inc()
			amt, _ := expired.Amount.Float64()
			uc.metrics.ExpirationAmount.Add(amt)
		}
		uc.log.Infof("Balance expired: uid=%s, amount=%s, last_activity_at=%s",
			uid, expired.Amount.String(), expired.LastActivityAt.Format(time.RFC3339))
	}

	if result.Expired > 0 || result.Failed > 0 {
		uc.log.Infof("Expiration sweep completed: expired=%d, failed=%d, total_amount=%s",
			result.Expired, result.Failed, result.TotalAmount.String())
	}
	return result, nil
}
