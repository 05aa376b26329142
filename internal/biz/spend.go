package biz

import (
	"context"
	"time"

	"juice-service/internal/constants"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// Spend 消费记录领域对象（向第三方项目的出账意向）
type Spend struct {
	SpendID            string
	UID                string
	ProjectID          int64
	ChainID            int64
	BeneficiaryAddress string
	Memo               string
	JuiceAmount        decimal.Decimal
	Status             string
	TxHash             string
	CryptoAmount       decimal.Decimal
	Rate               decimal.Decimal
	TokensReceived     decimal.Decimal
	ErrorMessage       string
	RetryCount         int
	LastRetryAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SpendJuiceParams 创建消费参数
type SpendJuiceParams struct {
	UID                string
	ProjectID          int64
	ChainID            int64 // 0 表示使用默认结算链
	BeneficiaryAddress string
	Memo               string
	JuiceAmount        decimal.Decimal
}

// SettlementResult 链上结算结果
type SettlementResult struct {
	TxHash         string
	CryptoAmount   decimal.Decimal
	Rate           decimal.Decimal
	TokensReceived decimal.Decimal
}

// SpendRepo 消费数据层接口（定义在 biz 层）
type SpendRepo interface {
	// CreateSpend 单事务：有条件扣减余额（不足则整体失败）+ 写入 pending 记录
	CreateSpend(ctx context.Context, s *Spend) error
	GetSpend(ctx context.Context, spendID string) (*Spend, error)
	// ListDueSpendIDs 查询待结算且未达重试上限的记录 ID
	ListDueSpendIDs(ctx context.Context, maxRetries, limit int) ([]string, error)
	// ClaimSpend lock-and-skip 认领：pending → executing；
	// 行被其他 worker 占用或状态已变时返回 (nil, false, nil)
	ClaimSpend(ctx context.Context, spendID string, maxRetries int) (*Spend, bool, error)
	// ClaimSpendBlocking 阻塞认领（手动触发路径）：等待行锁而非跳过；
	// pending 和停留在 executing 的记录都可认领，
	// 已是 completed/failed/refunded 时返回 SpendAlreadySettled
	ClaimSpendBlocking(ctx context.Context, spendID string) (*Spend, error)
	// CompleteSpend executing → completed，写入链上结算结果
	CompleteSpend(ctx context.Context, spendID string, res *SettlementResult) error
	// RetrySpend executing → pending，retry_count+1，记录错误
	RetrySpend(ctx context.Context, spendID, errMsg string) error
	// FailSpendAndRefund 单事务：executing → failed + 余额退回
	FailSpendAndRefund(ctx context.Context, spendID, errMsg string) error
	ListSpends(ctx context.Context, uid, status string, page, pageSize int) ([]*Spend, int64, error)
}

// SpendUseCase 消费业务逻辑
type SpendUseCase struct {
	repo    SpendRepo
	conf    *JuiceConfig
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewSpendUseCase 创建消费 UseCase
func NewSpendUseCase(repo SpendRepo, conf *JuiceConfig, logger log.Logger) *SpendUseCase {
	return &SpendUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// SpendJuice 用储值向第三方项目付款
//
// 先扣余额后排队结算：余额表达的是已承诺的意向而非链上事实，
// 并发请求因此不可能重复花同一笔余额；代价是结算彻底失败时需要退款路径。
func (uc *SpendUseCase) SpendJuice(ctx context.Context, params *SpendJuiceParams) (string, error) {
	chainID := params.ChainID
	if chainID == 0 {
		chainID = uc.conf.DefaultChainID
	}

	s := &Spend{
		UID:                params.UID,
		ProjectID:          params.ProjectID,
		ChainID:            chainID,
		BeneficiaryAddress: params.BeneficiaryAddress,
		Memo:               params.Memo,
		JuiceAmount:        params.JuiceAmount,
		Status:             constants.SpendStatusPending,
	}
	if err := uc.repo.CreateSpend(ctx, s); err != nil {
		if uc.metrics != nil {
			uc.metrics.SpendCreateTotal.WithLabelValues(constants.BatchResultFailed).Inc()
		}
		return "", err
	}

	if uc.metrics != nil {
		uc.metrics.SpendCreateTotal.WithLabelValues(constants.BatchResultSucceeded).Inc()
	}
	uc.log.Infof("Spend queued: spend_id=%s, uid=%s, project_id=%d, amount=%s, chain_id=%d",
		s.SpendID, s.UID, s.ProjectID, s.JuiceAmount.String(), chainID)
	return s.SpendID, nil
}

// GetSpend 查询单条消费记录
func (uc *SpendUseCase) GetSpend(ctx context.Context, spendID string) (*Spend, error) {
	return uc.repo.GetSpend(ctx, spendID)
}

// ListSpends 分页查询消费记录
func (uc *SpendUseCase) ListSpends(ctx context.Context, uid, status string, page, pageSize int) ([]*Spend, int64, error) {
	return uc.repo.ListSpends(ctx, uid, status, page, pageSize)
}
