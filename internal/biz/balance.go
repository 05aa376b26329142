package biz

import (
	"context"
	"time"

	"juice-service/internal/constants"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// LedgerKind 账本变动类型，决定扣减/退回时调整哪个累计计数器。
// 显式的类型标签，避免用字符串拼接选择列名。
type LedgerKind string

const (
	// LedgerKindSpend 消费
	LedgerKindSpend LedgerKind = constants.LedgerKindSpend
	// LedgerKindCashOut 提现
	LedgerKindCashOut LedgerKind = constants.LedgerKindCashOut
)

// Balance 用户储值余额领域对象
type Balance struct {
	UID               string
	Balance           decimal.Decimal
	LifetimePurchased decimal.Decimal
	LifetimeSpent     decimal.Decimal
	LifetimeCashedOut decimal.Decimal
	LastActivityAt    time.Time
	ExpiresAt         *time.Time
	UpdatedAt         time.Time
}

// BalanceRepo 余额数据层接口（定义在 biz 层）
//
// 扣减与退回不单独暴露：它们必须与对应的出账记录写入处于同一事务，
// 由 SpendRepo/CashOutRepo 的事务方法组合完成。
type BalanceRepo interface {
	// GetOrCreateBalance 获取余额，不存在则创建零余额行（并发重复创建按成功处理）
	GetOrCreateBalance(ctx context.Context, uid string) (*Balance, error)
	// GetBalance 获取余额，不存在返回 nil
	GetBalance(ctx context.Context, uid string) (*Balance, error)
	// Credit 充值入账：校验 purchase 处于 clearing 状态，余额与累计购买额同增，
	// purchase 置为 credited，全部在一个事务内提交
	Credit(ctx context.Context, uid string, amount decimal.Decimal, purchaseID string) error
}

// BalanceUseCase 余额业务逻辑
type BalanceUseCase struct {
	repo    BalanceRepo
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewBalanceUseCase 创建余额 UseCase
func NewBalanceUseCase(repo BalanceRepo, logger log.Logger) *BalanceUseCase {
	return &BalanceUseCase{
		repo:    repo,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetBalance 获取余额（不存在时返回零余额对象，不落库）
func (uc *BalanceUseCase) GetBalance(ctx context.Context, uid string) (*Balance, error) {
	if uc.metrics != nil {
		uc.metrics.BalanceQueryTotal.Inc()
	}
	b, err := uc.repo.GetBalance(ctx, uid)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &Balance{
			UID:               uid,
			Balance:           decimal.Zero,
			LifetimePurchased: decimal.Zero,
			LifetimeSpent:     decimal.Zero,
			LifetimeCashedOut: decimal.Zero,
		}
	}
	return b, nil
}

// GetOrCreateBalance 获取余额，不存在则创建
func (uc *BalanceUseCase) GetOrCreateBalance(ctx context.Context, uid string) (*Balance, error) {
	return uc.repo.GetOrCreateBalance(ctx, uid)
}
