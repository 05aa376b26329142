package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/data/model"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// purchaseRepo 充值相关数据访问
type purchaseRepo struct {
	data *Data
	log  *log.Helper
}

// NewPurchaseRepo 创建充值 repo（返回 biz.PurchaseRepo 接口）
func NewPurchaseRepo(data *Data, logger log.Logger) biz.PurchaseRepo {
	return &purchaseRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePurchase 创建充值记录
func (r *purchaseRepo) CreatePurchase(ctx context.Context, p *biz.Purchase) error {
	m := model.JuicePurchase{
		PurchaseID:  uuid.New().String(),
		UID:         p.UID,
		PaymentRef:  p.PaymentRef,
		FiatAmount:  p.FiatAmount,
		JuiceAmount: p.JuiceAmount,
		Status:      p.Status,
		ClearsAt:    p.ClearsAt,
	}
	if err := r.data.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	p.PurchaseID = m.PurchaseID
	return nil
}

// GetPurchaseByPaymentRef 按支付服务商订单号查询，不存在返回 nil
func (r *purchaseRepo) GetPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*biz.Purchase, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("paymentRef is required")
	}

	var m model.JuicePurchase
	if err := r.data.db.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizPurchase(&m), nil
}

// ListDuePurchaseIDs 查询已到入账时间的 clearing 记录 ID
func (r *purchaseRepo) ListDuePurchaseIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{}).
		Where("status = ? AND clears_at <= ?", model.PurchaseStatusClearing, now).
		Order("clears_at ASC").
		Limit(limit).
		Pluck("purchase_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreditDuePurchase 锁定并入账单条充值记录
//
// SKIP LOCKED 认领：行已被其他 worker 锁定、或重新检查后不再满足入账
// 条件时返回 (false, nil)，调用方按跳过处理。
func (r *purchaseRepo) CreditDuePurchase(ctx context.Context, purchaseID string) (bool, error) {
	var credited bool
	var uid string
	var amount float64

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.JuicePurchase
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("purchase_id = ? AND status = ? AND clears_at <= ?",
				purchaseID, model.PurchaseStatusClearing, time.Now()).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 被其他 worker 占用，或入账窗口内状态已变（争议/退款）
				return nil
			}
			return err
		}

		if err := creditPurchaseTx(tx, &p); err != nil {
			return err
		}
		credited = true
		uid = p.UID
		amount, _ = p.JuiceAmount.Float64()
		return nil
	})
	if err != nil {
		return false, err
	}
	if !credited {
		return false, nil
	}

	invalidateBalanceCache(ctx, r.data, uid)
	if m := metrics.GetMetrics(); m != nil {
		m.PurchaseCreditAmount.Add(amount)
	}
	return true, nil
}

// UpdateStatusFromIntake 将仍处于 {pending, clearing} 的记录置为目标状态
func (r *purchaseRepo) UpdateStatusFromIntake(ctx context.Context, paymentRef, status string) (bool, error) {
	result := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{}).
		Where("payment_ref = ? AND status IN ?", paymentRef,
			[]string{model.PurchaseStatusPending, model.PurchaseStatusClearing}).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListPurchases 分页查询充值记录
func (r *purchaseRepo) ListPurchases(ctx context.Context, uid, status string, page, pageSize int) ([]*biz.Purchase, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.data.db.WithContext(ctx).Model(&model.JuicePurchase{})
	if uid != "" {
		query = query.Where("uid = ?", uid)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []model.JuicePurchase
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	purchases := make([]*biz.Purchase, 0, len(ms))
	for i := range ms {
		purchases = append(purchases, toBizPurchase(&ms[i]))
	}
	return purchases, total, nil
}

// toBizPurchase model → biz 领域对象转换
func toBizPurchase(m *model.JuicePurchase) *biz.Purchase {
	return &biz.Purchase{
		PurchaseID:  m.PurchaseID,
		UID:         m.UID,
		PaymentRef:  m.PaymentRef,
		FiatAmount:  m.FiatAmount,
		JuiceAmount: m.JuiceAmount,
		Status:      m.Status,
		ClearsAt:    m.ClearsAt,
		CreditedAt:  m.CreditedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
