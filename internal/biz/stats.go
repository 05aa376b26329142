package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// DashboardStats 运营看板统计
type DashboardStats struct {
	TotalOutstanding    decimal.Decimal // 当前未消费余额总额（负债）
	TotalPurchased      decimal.Decimal // 历史充值总额
	TotalSpent          decimal.Decimal // 历史消费总额
	TotalCashedOut      decimal.Decimal // 历史提现总额
	PendingSpends       int64           // 待结算消费数
	PendingCashOuts     int64           // 待结算提现数
	ClearingPurchases   int64           // 清算中充值数
	FailedSettlements   int64           // 终态失败出账数（消费+提现）
	TodayPurchaseAmount decimal.Decimal // 今日充值金额
	TodaySpendAmount    decimal.Decimal // 今日消费金额
	WeekPurchaseAmount  decimal.Decimal // 近 7 日充值金额
	WeekSpendAmount     decimal.Decimal // 近 7 日消费金额
}

// StatsRepo 统计数据层接口（定义在 biz 层）
type StatsRepo interface {
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
}

// StatsUseCase 统计业务逻辑
type StatsUseCase struct {
	repo StatsRepo
	log  *log.Helper
}

// NewStatsUseCase 创建统计 UseCase
func NewStatsUseCase(repo StatsRepo, logger log.Logger) *StatsUseCase {
	return &StatsUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// GetDashboardStats 获取运营看板统计
func (uc *StatsUseCase) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	return uc.repo.GetDashboardStats(ctx)
}
