package biz

import (
	"context"
	"time"

	"juice-service/internal/constants"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// CashOut 提现记录领域对象（储值兑回加密货币）
type CashOut struct {
	CashOutID          string
	UID                string
	ChainID            int64
	DestinationAddress string
	Memo               string
	JuiceAmount        decimal.Decimal
	Status             string
	AvailableAt        time.Time
	TxHash             string
	CryptoAmount       decimal.Decimal
	Rate               decimal.Decimal
	ErrorMessage       string
	RetryCount         int
	LastRetryAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InitiateCashOutParams 发起提现参数
type InitiateCashOutParams struct {
	UID                string
	ChainID            int64 // 0 表示使用默认结算链
	DestinationAddress string
	Memo               string
	JuiceAmount        decimal.Decimal
}

// CashOutRepo 提现数据层接口（定义在 biz 层）
type CashOutRepo interface {
	// CreateCashOut 单事务：有条件扣减余额 + 写入 pending 记录
	CreateCashOut(ctx context.Context, c *CashOut) error
	GetCashOut(ctx context.Context, cashOutID string) (*CashOut, error)
	// ListDueCashOutIDs 查询持有期已过、未达重试上限的待结算记录 ID
	ListDueCashOutIDs(ctx context.Context, now time.Time, maxRetries, limit int) ([]string, error)
	// ClaimCashOut lock-and-skip 认领：pending → processing
	ClaimCashOut(ctx context.Context, cashOutID string, maxRetries int) (*CashOut, bool, error)
	// ClaimCashOutBlocking 阻塞认领（手动触发路径）：等待行锁而非跳过；
	// pending 和停留在 processing 的记录都可认领，
	// 已是 completed/failed/cancelled 时返回 InvalidCashOutState
	ClaimCashOutBlocking(ctx context.Context, cashOutID string) (*CashOut, error)
	CompleteCashOut(ctx context.Context, cashOutID string, res *SettlementResult) error
	RetryCashOut(ctx context.Context, cashOutID, errMsg string) error
	// FailCashOutAndRefund 单事务：processing → failed + 余额退回
	FailCashOutAndRefund(ctx context.Context, cashOutID, errMsg string) error
	// CancelCashOut 单事务：pending → cancelled + 余额退回；
	// 仅限本人、仅限 pending
	CancelCashOut(ctx context.Context, cashOutID, uid string) error
	ListCashOuts(ctx context.Context, uid, status string, page, pageSize int) ([]*CashOut, int64, error)
}

// CashOutUseCase 提现业务逻辑
type CashOutUseCase struct {
	repo    CashOutRepo
	conf    *JuiceConfig
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewCashOutUseCase 创建提现 UseCase
func NewCashOutUseCase(repo CashOutRepo, conf *JuiceConfig, logger log.Logger) *CashOutUseCase {
	return &CashOutUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// InitiateCashOut 发起提现
//
// 与消费相同的先扣款后排队模式，另加固定持有期（反欺诈窗口），
// available_at 之前结算 worker 不会碰这条记录。
func (uc *CashOutUseCase) InitiateCashOut(ctx context.Context, params *InitiateCashOutParams) (string, error) {
	chainID := params.ChainID
	if chainID == 0 {
		chainID = uc.conf.DefaultChainID
	}

	c := &CashOut{
		UID:                params.UID,
		ChainID:            chainID,
		DestinationAddress: params.DestinationAddress,
		Memo:               params.Memo,
		JuiceAmount:        params.JuiceAmount,
		Status:             constants.CashOutStatusPending,
		AvailableAt:        time.Now().Add(uc.conf.CashOutHoldDelay),
	}
	if err := uc.repo.CreateCashOut(ctx, c); err != nil {
		if uc.metrics != nil {
			uc.metrics.CashOutCreateTotal.WithLabelValues(constants.BatchResultFailed).Inc()
		}
		return "", err
	}

	if uc.metrics != nil {
		uc.metrics.CashOutCreateTotal.WithLabelValues(constants.BatchResultSucceeded).Inc()
	}
	uc.log.Infof("Cash out queued: cash_out_id=%s, uid=%s, amount=%s, available_at=%s",
		c.CashOutID, c.UID, c.JuiceAmount.String(), c.AvailableAt.Format(time.RFC3339))
	return c.CashOutID, nil
}

// CancelCashOut 用户取消提现（仅限 pending），余额原子退回
func (uc *CashOutUseCase) CancelCashOut(ctx context.Context, cashOutID, uid string) error {
	if err := uc.repo.CancelCashOut(ctx, cashOutID, uid); err != nil {
		return err
	}
	if uc.metrics != nil {
		uc.metrics.CashOutCancelTotal.Inc()
	}
	uc.log.Infof("Cash out cancelled: cash_out_id=%s, uid=%s", cashOutID, uid)
	return nil
}

// GetCashOut 查询单条提现记录
func (uc *CashOutUseCase) GetCashOut(ctx context.Context, cashOutID string) (*CashOut, error) {
	return uc.repo.GetCashOut(ctx, cashOutID)
}

// ListCashOuts 分页查询提现记录
func (uc *CashOutUseCase) ListCashOuts(ctx context.Context, uid, status string, page, pageSize int) ([]*CashOut, int64, error) {
	return uc.repo.ListCashOuts(ctx, uid, status, page, pageSize)
}
