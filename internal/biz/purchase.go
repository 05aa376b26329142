package biz

import (
	"context"
	"time"

	"juice-service/internal/constants"
	juiceErrors "juice-service/internal/errors"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// Purchase 充值记录领域对象
type Purchase struct {
	PurchaseID  string
	UID         string
	PaymentRef  string // 支付服务商外部订单号（幂等键）
	FiatAmount  decimal.Decimal
	JuiceAmount decimal.Decimal
	Status      string
	ClearsAt    time.Time
	CreditedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreatePurchaseParams 创建充值参数
type CreatePurchaseParams struct {
	UID         string
	PaymentRef  string
	FiatAmount  decimal.Decimal
	JuiceAmount decimal.Decimal
	// SettlementDelay 入账延迟覆盖值；nil 时使用配置默认
	SettlementDelay *time.Duration
}

// PurchaseRepo 充值数据层接口（定义在 biz 层）
type PurchaseRepo interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*Purchase, error)
	// ListDuePurchaseIDs 查询已到入账时间的 clearing 记录 ID
	ListDuePurchaseIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	// CreditDuePurchase 锁定并入账单条充值记录；行已被其他 worker 锁定或
	// 不再满足条件时返回 (false, nil)，表示跳过
	CreditDuePurchase(ctx context.Context, purchaseID string) (bool, error)
	// UpdateStatusFromIntake 将仍处于 {pending, clearing} 的记录置为目标状态，
	// 返回是否发生了更新
	UpdateStatusFromIntake(ctx context.Context, paymentRef, status string) (bool, error)
	ListPurchases(ctx context.Context, uid, status string, page, pageSize int) ([]*Purchase, int64, error)
}

// PurchaseUseCase 充值入账业务逻辑
type PurchaseUseCase struct {
	repo    PurchaseRepo
	conf    *JuiceConfig
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewPurchaseUseCase 创建充值 UseCase
func NewPurchaseUseCase(repo PurchaseRepo, conf *JuiceConfig, logger log.Logger) *PurchaseUseCase {
	return &PurchaseUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// CreatePurchase 创建充值记录（clearing 状态，clears_at = now + 入账延迟）
//
// 以 paymentRef 保证幂等：支付服务商重复投递同一笔支付时返回已存在的记录。
func (uc *PurchaseUseCase) CreatePurchase(ctx context.Context, params *CreatePurchaseParams) (string, error) {
	existing, err := uc.repo.GetPurchaseByPaymentRef(ctx, params.PaymentRef)
	if err != nil {
		return "", err
	}
	if existing != nil {
		uc.log.Infof("Purchase already exists: payment_ref=%s, purchase_id=%s", params.PaymentRef, existing.PurchaseID)
		return existing.PurchaseID, nil
	}

	delay := uc.conf.SettlementDelay
	if params.SettlementDelay != nil {
		delay = *params.SettlementDelay
	}

	p := &Purchase{
		UID:         params.UID,
		PaymentRef:  params.PaymentRef,
		FiatAmount:  params.FiatAmount,
		JuiceAmount: params.JuiceAmount,
		Status:      constants.PurchaseStatusClearing,
		ClearsAt:    time.Now().Add(delay),
	}
	if err := uc.repo.CreatePurchase(ctx, p); err != nil {
		// 创建失败可能是并发导致的重复创建，尝试重新获取
		existing, getErr := uc.repo.GetPurchaseByPaymentRef(ctx, params.PaymentRef)
		if getErr == nil && existing != nil {
			return existing.PurchaseID, nil
		}
		return "", err
	}
	uc.log.Infof("Purchase created: purchase_id=%s, payment_ref=%s, amount=%s, clears_at=%s",
		p.PurchaseID, p.PaymentRef, p.JuiceAmount.String(), p.ClearsAt.Format(time.RFC3339))
	return p.PurchaseID, nil
}

// CreditDuePurchases 批量入账已到期的充值
//
// 逐条以 lock-and-skip 方式认领，单条失败只计数，不中断整批。
func (uc *PurchaseUseCase) CreditDuePurchases(ctx context.Context, batchSize int) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = uc.conf.BatchSize
	}
	result := &BatchResult{}

	ids, err := uc.repo.ListDuePurchaseIDs(ctx, time.Now(), batchSize)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		credited, err := uc.repo.CreditDuePurchase(ctx, id)
		if err != nil {
			uc.log.Errorf("CreditDuePurchase failed: purchase_id=%s, error=%v", id, err)
			result.Failed++
			if uc.metrics != nil {
				uc.metrics.PurchaseCreditTotal.WithLabelValues(constants.BatchResultFailed).Inc()
			}
			continue
		}
		if !credited {
			// 被其他 worker 认领或已不满足条件
			result.StillPending++
			continue
		}
		result.Succeeded++
		if uc.metrics != nil {
			uc.metrics.PurchaseCreditTotal.WithLabelValues(constants.BatchResultSucceeded).Inc()
		}
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		uc.log.Infof("Credit due purchases completed: credited=%d, failed=%d, skipped=%d",
			result.Succeeded, result.Failed, result.StillPending)
	}
	return result, nil
}

// PaymentEvent 支付服务商经消息队列投递的事件
type PaymentEvent struct {
	EventType   string `json:"event_type"`
	PaymentRef  string `json:"payment_ref"`
	UID         string `json:"uid,omitempty"`
	FiatAmount  string `json:"fiat_amount,omitempty"`
	JuiceAmount string `json:"juice_amount,omitempty"`
}

// HandlePaymentEvent 处理一条支付事件（与 HTTP 回调同一套语义，幂等）
func (uc *PurchaseUseCase) HandlePaymentEvent(ctx context.Context, event *PaymentEvent) error {
	switch event.EventType {
	case constants.PaymentEventSettled:
		fiat, err := decimal.NewFromString(event.FiatAmount)
		if err != nil {
			return err
		}
		juice, err := decimal.NewFromString(event.JuiceAmount)
		if err != nil {
			return err
		}
		_, err = uc.CreatePurchase(ctx, &CreatePurchaseParams{
			UID:         event.UID,
			PaymentRef:  event.PaymentRef,
			FiatAmount:  fiat,
			JuiceAmount: juice,
		})
		return err
	case constants.PaymentEventDisputed:
		return uc.MarkDisputed(ctx, event.PaymentRef)
	case constants.PaymentEventRefunded:
		return uc.MarkRefunded(ctx, event.PaymentRef)
	}
	uc.log.Warnf("Unknown payment event type, dropping: event_type=%s, payment_ref=%s",
		event.EventType, event.PaymentRef)
	return nil
}

// MarkDisputed 标记充值为争议（支付服务商回调，幂等）
func (uc *PurchaseUseCase) MarkDisputed(ctx context.Context, paymentRef string) error {
	return uc.markReversed(ctx, paymentRef, constants.PurchaseStatusDisputed)
}

// MarkRefunded 标记充值为已退款（支付服务商回调，幂等）
func (uc *PurchaseUseCase) MarkRefunded(ctx context.Context, paymentRef string) error {
	return uc.markReversed(ctx, paymentRef, constants.PurchaseStatusRefunded)
}

// markReversed 争议/退款只作用于仍处于 {pending, clearing} 的充值。
// 已入账后的争议没有定义的冲正路径，只记录并计数，等待产品决策。
func (uc *PurchaseUseCase) markReversed(ctx context.Context, paymentRef, status string) error {
	p, err := uc.repo.GetPurchaseByPaymentRef(ctx, paymentRef)
	if err != nil {
		return err
	}
	if p == nil {
		return juiceErrors.ErrPurchaseNotFound(paymentRef)
	}
	if p.Status == status {
		// 重复投递，幂等返回
		return nil
	}
	if p.Status == constants.PurchaseStatusCredited {
		uc.log.Warnf("Reversal event for already-credited purchase, no ledger effect: payment_ref=%s, target=%s",
			paymentRef, status)
		if uc.metrics != nil {
			uc.metrics.PurchaseReversalSkipped.Inc()
		}
		return nil
	}

	updated, err := uc.repo.UpdateStatusFromIntake(ctx, paymentRef, status)
	if err != nil {
		return err
	}
	if updated {
		uc.log.Infof("Purchase marked %s: payment_ref=%s", status, paymentRef)
	}
	return nil
}

// ListPurchases 分页查询充值记录
func (uc *PurchaseUseCase) ListPurchases(ctx context.Context, uid, status string, page, pageSize int) ([]*Purchase, int64, error) {
	return uc.repo.ListPurchases(ctx, uid, status, page, pageSize)
}
