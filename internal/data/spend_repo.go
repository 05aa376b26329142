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

// spendRepo 消费相关数据访问
type spendRepo struct {
	data    *Data
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.JuiceMetrics
}

// NewSpendRepo 创建消费 repo（返回 biz.SpendRepo 接口）
func NewSpendRepo(data *Data, sync *redsync.Redsync, logger log.Logger) biz.SpendRepo {
	return &spendRepo{
		data:    data,
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// CreateSpend 单事务：有条件扣减余额 + 写入 pending 记录
//
// 余额不足时整个事务回滚，不产生任何记录。
func (r *spendRepo) CreateSpend(ctx context.Context, s *biz.Spend) error {
	m := model.JuiceSpend{
		SpendID:            uuid.New().String(),
		UID:                s.UID,
		ProjectID:          s.ProjectID,
		ChainID:            s.ChainID,
		BeneficiaryAddress: s.BeneficiaryAddress,
		Memo:               s.Memo,
		JuiceAmount:        s.JuiceAmount,
		Status:             model.SpendStatusPending,
	}

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitBalanceTx(tx, s.UID, s.JuiceAmount, biz.LedgerKindSpend); err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return err
	}

	s.SpendID = m.SpendID
	invalidateBalanceCache(ctx, r.data, s.UID)
	return nil
}

// GetSpend 查询单条消费记录
func (r *spendRepo) GetSpend(ctx context.Context, spendID string) (*biz.Spend, error) {
	var m model.JuiceSpend
	if err := r.data.db.WithContext(ctx).Where("spend_id = ?", spendID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, juiceErrors.ErrSpendNotFound(spendID)
		}
		return nil, err
	}
	return toBizSpend(&m), nil
}

// ListDueSpendIDs 查询待结算且未达重试上限的记录 ID
func (r *spendRepo) ListDueSpendIDs(ctx context.Context, maxRetries, limit int) ([]string, error) {
	var ids []string
	err := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("status = ? AND retry_count < ?", model.SpendStatusPending, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Pluck("spend_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimSpend lock-and-skip 认领：pending → executing
//
// 状态翻转保证锁释放后其他 worker 依旧看不到这条记录。
func (r *spendRepo) ClaimSpend(ctx context.Context, spendID string, maxRetries int) (*biz.Spend, bool, error) {
	var claimed *model.JuiceSpend

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceSpend
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("spend_id = ? AND status = ? AND retry_count < ?",
				spendID, model.SpendStatusPending, maxRetries).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 被其他 worker 占用或状态已变
				return nil
			}
			return err
		}

		if err := tx.Model(&model.JuiceSpend{}).
			Where("spend_id = ?", spendID).
			Update("status", model.SpendStatusExecuting).Error; err != nil {
			return err
		}
		m.Status = model.SpendStatusExecuting
		claimed = &m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if claimed == nil {
		return nil, false, nil
	}
	return toBizSpend(claimed), true, nil
}

// ClaimSpendBlocking 阻塞认领（手动触发路径）
//
// 先以分布式锁串行化同一条记录的手动触发，再等待行锁而非跳过；
// 拿到锁后重新检查状态，已终态的记录返回 SpendAlreadySettled。
func (r *spendRepo) ClaimSpendBlocking(ctx context.Context, spendID string) (*biz.Spend, error) {
	lockKey := fmt.Sprintf("%s%s", constants.RedisKeySpendLock, spendID)
	if r.sync != nil {
		lockStartTime := time.Now()
		mutex := r.sync.NewMutex(lockKey, redsync.WithExpiry(30*time.Second))
		if err := mutex.Lock(); err != nil {
			r.log.Errorf("Failed to acquire lock for manual spend settlement: spend_id=%s, error=%v", spendID, err)
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
				r.log.Warnf("Failed to unlock for manual spend settlement: spend_id=%s, error=%v", spendID, err)
			}
		}()
	}

	var claimed *model.JuiceSpend
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceSpend
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("spend_id = ?", spendID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return juiceErrors.ErrSpendNotFound(spendID)
			}
			return err
		}

		switch m.Status {
		case model.SpendStatusCompleted, model.SpendStatusFailed, model.SpendStatusRefunded:
			return juiceErrors.ErrSpendAlreadySettled(spendID, m.Status)
		}

		if err := tx.Model(&model.JuiceSpend{}).
			Where("spend_id = ?", spendID).
			Update("status", model.SpendStatusExecuting).Error; err != nil {
			return err
		}
		m.Status = model.SpendStatusExecuting
		claimed = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toBizSpend(claimed), nil
}

// CompleteSpend executing → completed，写入链上结算结果
func (r *spendRepo) CompleteSpend(ctx context.Context, spendID string, res *biz.SettlementResult) error {
	result := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("spend_id = ? AND status = ?", spendID, model.SpendStatusExecuting).
		Updates(map[string]interface{}{
			"status":          model.SpendStatusCompleted,
			"tx_hash":         res.TxHash,
			"crypto_amount":   res.CryptoAmount,
			"rate":            res.Rate,
			"tokens_received": res.TokensReceived,
			"error_message":   "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("complete spend affected no rows: spend_id=%s", spendID)
	}
	return nil
}

// RetrySpend executing → pending，retry_count+1，记录错误
func (r *spendRepo) RetrySpend(ctx context.Context, spendID, errMsg string) error {
	result := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{}).
		Where("spend_id = ? AND status = ?", spendID, model.SpendStatusExecuting).
		Updates(map[string]interface{}{
			"status":        model.SpendStatusPending,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": truncateError(errMsg),
			"last_retry_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("retry spend affected no rows: spend_id=%s", spendID)
	}
	return nil
}

// FailSpendAndRefund 单事务：executing → failed + 余额退回
//
// 状态条件保证退款恰好发生一次，重复调用第二次会因行不满足条件而失败。
func (r *spendRepo) FailSpendAndRefund(ctx context.Context, spendID, errMsg string) error {
	var uid string
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.JuiceSpend
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("spend_id = ? AND status = ?", spendID, model.SpendStatusExecuting).
			First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("fail-and-refund target not in executing state: spend_id=%s", spendID)
			}
			return err
		}

		if err := tx.Model(&model.JuiceSpend{}).
			Where("spend_id = ?", spendID).
			Updates(map[string]interface{}{
				"status":        model.SpendStatusFailed,
				"error_message": truncateError(errMsg),
				"last_retry_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		uid = m.UID
		return refundBalanceTx(tx, m.UID, m.JuiceAmount, biz.LedgerKindSpend)
	})
	if err != nil {
		return err
	}

	invalidateBalanceCache(ctx, r.data, uid)
	return nil
}

// ListSpends 分页查询消费记录
func (r *spendRepo) ListSpends(ctx context.Context, uid, status string, page, pageSize int) ([]*biz.Spend, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := r.data.db.WithContext(ctx).Model(&model.JuiceSpend{})
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

	var ms []model.JuiceSpend
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	spends := make([]*biz.Spend, 0, len(ms))
	for i := range ms {
		spends = append(spends, toBizSpend(&ms[i]))
	}
	return spends, total, nil
}

// toBizSpend model → biz 领域对象转换
func toBizSpend(m *model.JuiceSpend) *biz.Spend {
	return &biz.Spend{
		SpendID:            m.SpendID,
		UID:                m.UID,
		ProjectID:          m.ProjectID,
		ChainID:            m.ChainID,
		BeneficiaryAddress: m.BeneficiaryAddress,
		Memo:               m.Memo,
		JuiceAmount:        m.JuiceAmount,
		Status:             m.Status,
		TxHash:             m.TxHash,
		CryptoAmount:       m.CryptoAmount,
		Rate:               m.Rate,
		TokensReceived:     m.TokensReceived,
		ErrorMessage:       m.ErrorMessage,
		RetryCount:         m.RetryCount,
		LastRetryAt:        m.LastRetryAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// truncateError 错误信息截断到列宽以内
func truncateError(msg string) string {
	if len(msg) > 512 {
		return msg[:512]
	}
	return msg
}
