package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/constants"
	"juice-service/internal/data/model"
	juiceErrors "juice-service/internal/errors"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cashOutRepo 提现相关数据访问
type cashOutRepo struct {
	data    *Data
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewCashOutRepo 创建提现 repo（返回 biz.CashOutRepo 接口）
func NewCashOutRepo(data *Data, sync *redsync.Redsync, logger log.Logger) biz.CashOutRepo {
	return &cashOutRepo{
		data:    data,
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// CreateCashOut 单事务：有条件扣减余额 + 写入 pending 记录
func (r *cashOutRepo) CreateCashOut(ctx context.Context, c *biz.CashOut) error {
	m := model.JuiceCashOut{
		CashOutID:          uuid.New().String(),
		UID:                c.UID,
		ChainID:            c.ChainID,
		DestinationAddress: c.DestinationAddress,
		Memo:               c.Memo,
		JuiceAmount:        c.JuiceAmount,
		Status:             model.CashOutStatusPending,
		AvailableAt:        c.AvailableAt,
	}

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitBalanceTx(tx, c.UID, c.JuiceAmount, biz.LedgerKindCashOut); err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return err
	}

	c.CashOutID = m.CashOutID
	invalidateBalanceCache(ctx, r.data, c.UID)
	return nil
}

// GetCashOut 查询单条提现记录
func (r *cashOutRepo) GetCashOut(ctx context.Context, cashOutID string) (*biz.CashOut, error) {
	var m model.JuiceCashOut
	if err := r.data.db.WithContext(ctx).Where("cash_out_id = ?", cashOutID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, juiceErrors.ErrCashOutNotFound(cashOutID)
		}
		return nil, err
	}
	return toBizCashOut(&m), nil
}

// ListDueCashOutIDs 查询持有期已过、未达重试上限的待结算记录 ID
func (r *cashOutRepo) ListDueCashOutIDs(ctx context.Context, now time.Time, maxRetries, limit int) ([]string, error) {
	var ids []string
	err := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{}).
		Where("status = ? AND available_at <= ? AND retry_count < ?",
			model.CashOutStatusPending, now, maxRetries).
		Order("available_at ASC").
		Limit(limit).
		Pluck("cash_out_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimCashOut lock-and-skip 认领：pending → processing
func (r *cashOutRepo) ClaimCashOut(ctx context.Context, cashOutID string, maxRetries int) (*biz.CashOut, bool, error) {
	var claimed *model.JuiceCashOut

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceCashOut
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("cash_out_id = ? AND status = ? AND available_at <= ? AND retry_count < ?",
				cashOutID, model.CashOutStatusPending, time.Now(), maxRetries).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 被其他 worker 占用、已取消或状态已变
				return nil
			}
			return err
		}

		if err := tx.Model(&model.JuiceCashOut{}).
			Where("cash_out_id = ?", cashOutID).
			Update("status", model.CashOutStatusProcessing).Error; err != nil {
			return err
		}
		m.Status = model.CashOutStatusProcessing
		claimed = &m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if claimed == nil {
		return nil, false, nil
	}
	return toBizCashOut(claimed), true, nil
}

// ClaimCashOutBlocking 阻塞认领（手动触发路径）
//
// 先以分布式锁串行化同一条记录的手动触发，再等待行锁而非跳过；
// 拿到锁后重新检查状态：已终态返回 InvalidCashOutState，
// pending 和停留在 processing 的记录（如 worker 结算中途崩溃）都可认领。
func (r *cashOutRepo) ClaimCashOutBlocking(ctx context.Context, cashOutID string) (*biz.CashOut, error) {
	lockKey := fmt.Sprintf("%s%s", constants.RedisKeyCashOutLock, cashOutID)
	if r.sync != nil {
		lockStartTime := time.Now()
		mutex := r.sync.NewMutex(lockKey, redsync.WithExpiry(30*time.Second))
		if err := mutex.Lock(); err != nil {
			r.log.Errorf("Failed to acquire lock for manual cash out settlement: cash_out_id=%s, error=%v", cashOutID, err)
			if r.metrics != nil {
				r.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultFailed).Inc()
				r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
			}
			return nil, err
		}
		if r.metrics != nil {
			r.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultSuccess).Inc()
			r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		defer func() {
			if ok, err := mutex.Unlock(); !ok || err != nil {
				r.log.Warnf("Failed to unlock for manual cash out settlement: cash_out_id=%s, error=%v", cashOutID, err)
			}
		}()
	}

	var claimed *model.JuiceCashOut
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceCashOut
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cash_out_id = ?", cashOutID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return juiceErrors.ErrCashOutNotFound(cashOutID)
			}
			return err
		}

		switch m.Status {
		case model.CashOutStatusCompleted, model.CashOutStatusFailed, model.CashOutStatusCancelled:
			return juiceErrors.ErrInvalidCashOutState(cashOutID, m.Status)
		}

		if err := tx.Model(&model.JuiceCashOut{}).
			Where("cash_out_id = ?", cashOutID).
			Update("status", model.CashOutStatusProcessing).Error; err != nil {
			return err
		}
		m.Status = model.CashOutStatusProcessing
		claimed = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toBizCashOut(claimed), nil
}

// CompleteCashOut processing → completed，写入链上结算结果
func (r *cashOutRepo) CompleteCashOut(ctx context.Context, cashOutID string, res *biz.SettlementResult) error {
	result := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{}).
		Where("cash_out_id = ? AND status = ?", cashOutID, model.CashOutStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.CashOutStatusCompleted,
			"tx_hash":       res.TxHash,
			"crypto_amount": res.CryptoAmount,
			"rate":          res.Rate,
			"error_message": "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("complete cash out affected no rows: cash_out_id=%s", cashOutID)
	}
	return nil
}

// RetryCashOut processing → pending，retry_count+1，记录错误
func (r *cashOutRepo) RetryCashOut(ctx context.Context, cashOutID, errMsg string) error {
	result := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{}).
		Where("cash_out_id = ? AND status = ?", cashOutID, model.CashOutStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.CashOutStatusPending,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": truncateError(errMsg),
			"last_retry_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("retry cash out affected no rows: cash_out_id=%s", cashOutID)
	}
	return nil
}

// FailCashOutAndRefund 单事务：processing → failed + 余额退回
//
// 状态条件保证退款恰好发生一次。
func (r *cashOutRepo) FailCashOutAndRefund(ctx context.Context, cashOutID, errMsg string) error {
	var uid string
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceCashOut
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cash_out_id = ? AND status = ?", cashOutID, model.CashOutStatusProcessing).
			First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("fail-and-refund target not in processing state: cash_out_id=%s", cashOutID)
			}
			return err
		}

		if err := tx.Model(&model.JuiceCashOut{}).
			Where("cash_out_id = ?", cashOutID).
			Updates(map[string]interface{}{
				"status":        model.CashOutStatusFailed,
				"error_message": truncateError(errMsg),
				"last_retry_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		uid = m.UID
		return refundBalanceTx(tx, m.UID, m.JuiceAmount, biz.LedgerKindCashOut)
	})
	if err != nil {
		return err
	}

	invalidateBalanceCache(ctx, r.data, uid)
	return nil
}

// CancelCashOut 单事务：pending → cancelled + 余额退回
//
// 仅限本人、仅限 pending；进入 processing 后链上出账可能已在途，不可取消。
func (r *cashOutRepo) CancelCashOut(ctx context.Context, cashOutID, uid string) error {
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceCashOut
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cash_out_id = ?", cashOutID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return juiceErrors.ErrCashOutNotFound(cashOutID)
			}
			return err
		}
		if m.UID != uid {
			// 不暴露他人记录的存在性
			return juiceErrors.ErrCashOutNotFound(cashOutID)
		}
		if m.Status != model.CashOutStatusPending {
			return juiceErrors.ErrInvalidCashOutState(cashOutID, m.Status)
		}

		if err := tx.Model(&model.JuiceCashOut{}).
			Where("cash_out_id = ?", cashOutID).
			Update("status", model.CashOutStatusCancelled).Error; err != nil {
			return err
		}
		return refundBalanceTx(tx, uid, m.JuiceAmount, biz.LedgerKindCashOut)
	})
	if err != nil {
		return err
	}

	invalidateBalanceCache(ctx, r.data, uid)
	return nil
}

// ListCashOuts 分页查询提现记录
func (r *cashOutRepo) ListCashOuts(ctx context.Context, uid, status string, page, pageSize int) ([]*biz.CashOut, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.data.db.WithContext(ctx).Model(&model.JuiceCashOut{})
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

	var ms []model.JuiceCashOut
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	cashOuts := make([]*biz.CashOut, 0, len(ms))
	for i := range ms {
		cashOuts = append(cashOuts, toBizCashOut(&ms[i]))
	}
	return cashOuts, total, nil
}

// toBizCashOut model → biz 领域对象转换
func toBizCashOut(m *model.JuiceCashOut) *biz.CashOut {
	return &biz.CashOut{
		CashOutID:          m.CashOutID,
		UID:                m.UID,
		ChainID:            m.ChainID,
		DestinationAddress: m.DestinationAddress,
		Memo:               m.Memo,
		JuiceAmount:        m.JuiceAmount,
		Status:             m.Status,
		AvailableAt:        m.AvailableAt,
		TxHash:             m.TxHash,
		CryptoAmount:       m.CryptoAmount,
		Rate:               m.Rate,
		ErrorMessage:       m.ErrorMessage,
		RetryCount:         m.RetryCount,
		LastRetryAt:        m.LastRetryAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
