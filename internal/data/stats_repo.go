package data

import (
	"context"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// statsRepo 统计相关数据访问
type statsRepo struct {
	data *Data
	log  *log.Helper
}

// NewStatsRepo 创建统计 repo（返回 biz.StatsRepo 接口）
func NewStatsRepo(data *Data, logger log.Logger) biz.StatsRepo {
	return &statsRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetDashboardStats 获取运营看板统计
//
// 汇总金额用 SQL SUM 以字符串取回再转 decimal，避免 float 精度损失。
func (r *statsRepo) GetDashboardStats(ctx context.Context) (*biz.DashboardStats, error) {
	stats := &biz.DashboardStats{
		TotalOutstanding:    decimal.Zero,
		TotalPurchased:      decimal.Zero,
		TotalSpent:          decimal.Zero,
		TotalCashedOut:      decimal.Zero,
		TodayPurchaseAmount: decimal.Zero,
		TodaySpendAmount:    decimal.Zero,
		WeekPurchaseAmount:  decimal.Zero,
		WeekSpendAmount:     decimal.Zero,
	}

	// 余额表汇总
	var totals struct {
		Outstanding string
		Purchased   string
		Spent       string
		CashedOut   string
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceBalance{}).
		Select(
			"COALESCE(SUM(balance), 0) as outstanding",
			"COALESCE(SUM(lifetime_purchased), 0) as purchased",
			"COALESCE(SUM(lifetime_spent), 0) as spent",
			"COALESCE(SUM(lifetime_cashed_out), 0) as cashed_out",
		).Scan(&totals).Error; err != nil {
		return nil, err
	}
	if v, err := decimal.NewFromString(totals.Outstanding); err == nil {
		stats.TotalOutstanding = v
	}
	if v, err := decimal.NewFromString(totals.Purchased); err == nil {
		stats.TotalPurchased = v
	}
	if v, err := decimal.NewFromString(totals.Spent); err == nil {
		stats.TotalSpent = v
	}
	if v, err := decimal.NewFromString(totals.CashedOut); err == nil {
		stats.TotalCashedOut = v
	}

	// 队列深度
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("status IN ?", []string{model.SpendStatusPending, model.SpendStatusExecuting}).
		Count(&stats.PendingSpends).Error; err != nil {
		return nil, err
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{}).
		Where("status IN ?", []string{model.CashOutStatusPending, model.CashOutStatusProcessing}).
		Count(&stats.PendingCashOuts).Error; err != nil {
		return nil, err
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{}).
		Where("status = ?", model.PurchaseStatusClearing).
		Count(&stats.ClearingPurchases).Error; err != nil {
		return nil, err
	}

	// 终态失败出账数（消费+提现）
	var failedSpends, failedCashOuts int64
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("status = ?", model.SpendStatusFailed).
		Count(&failedSpends).Error; err != nil {
		return nil, err
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{}).
		Where("status = ?", model.CashOutStatusFailed).
		Count(&failedCashOuts).Error; err != nil {
		return nil, err
	}
	stats.FailedSettlements = failedSpends + failedCashOuts

	// 今日金额
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayEnd := todayStart.Add(24 * time.Hour)

	var todayPurchase, todaySpend struct{ Amount string }
	if err := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{}).
		Where("created_at >= ? AND created_at < ?", todayStart, todayEnd).
		Select("COALESCE(SUM(juice_amount), 0) as amount").
		Scan(&todayPurchase).Error; err != nil {
		return nil, err
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("created_at >= ? AND created_at < ?", todayStart, todayEnd).
		Select("COALESCE(SUM(juice_amount), 0) as amount").
		Scan(&todaySpend).Error; err != nil {
		return nil, err
	}
	if v, err := decimal.NewFromString(todayPurchase.Amount); err == nil {
		stats.TodayPurchaseAmount = v
	}
	if v, err := decimal.NewFromString(todaySpend.Amount); err == nil {
		stats.TodaySpendAmount = v
	}

	// 近 7 日金额（滚动窗口，含今日）
	weekStart := todayStart.AddDate(0, 0, -6)
	var weekPurchase, weekSpend struct{ Amount string }
	if err := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{}).
		Where("created_at >= ? AND created_at < ?", weekStart, todayEnd).
		Select("COALESCE(SUM(juice_amount), 0) as amount").
		Scan(&weekPurchase).Error; err != nil {
		return nil, err
	}
	if err := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("created_at >= ? AND created_at < ?", weekStart, todayEnd).
		Select("COALESCE(SUM(juice_amount), 0) as amount").
		Scan(&weekSpend).Error; err != nil {
		return nil, err
	}
	if v, err := decimal.NewFromString(weekPurchase.Amount); err == nil {
		stats.WeekPurchaseAmount = v
	}
	if v, err := decimal.NewFromString(weekSpend.Amount); err == nil {
		stats.WeekSpendAmount = v
	}

	return stats, nil
}
