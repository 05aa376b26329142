package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/constants"
	"juice-service/internal/data/model"
	juiceErrors "juice-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// balanceRepo 余额相关数据访问
type balanceRepo struct {
	data *Data
	log  *log.Helper
}

// NewBalanceRepo 创建余额 repo（返回 biz.BalanceRepo 接口）
func NewBalanceRepo(data *Data, logger log.Logger) biz.BalanceRepo {
	return &balanceRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetBalance 获取用户余额，不存在返回 nil
func (r *balanceRepo) GetBalance(ctx context.Context, uid string) (*biz.Balance, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	// 先尝试从 Redis 获取完整余额行
	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, uid)
	payload, err := r.data.rdb.Get(ctx, balanceKey).Bytes()
	if err == nil {
		if b, ok := decodeBalanceCache(payload, uid); ok {
			return b, nil
		}
		// 旧格式或损坏的条目按未命中处理，回源后覆盖重建
	}

	// 缓存未命中，从数据库查询
	var m model.JuiceBalance
	if err := r.data.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 用户不存在，返回 nil 而不是错误（业务层会处理为余额 0）
			return nil, nil
		}
		r.log.Errorf("GetBalance failed: uid=%s, error=%v", uid, err)
		return nil, fmt.Errorf("failed to query juice balance from database: %w", err)
	}

	result := toBizBalance(&m)

	// 更新缓存（异步，不阻塞，设置超时避免长时间等待）
	if cachePayload, marshalErr := encodeBalanceCache(result); marshalErr == nil {
		go func() {
			cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cacheCancel()
			r.data.rdb.Set(cacheCtx, balanceKey, cachePayload, 5*time.Minute)
		}()
	}

	return result, nil
}

// GetOrCreateBalance 获取用户余额，不存在则创建零余额行
func (r *balanceRepo) GetOrCreateBalance(ctx context.Context, uid string) (*biz.Balance, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	var m model.JuiceBalance
	err := r.data.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error
	if err == nil {
		return toBizBalance(&m), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	m = model.JuiceBalance{
		JuiceBalanceID:    uuid.New().String(),
		UID:               uid,
		Balance:           decimal.Zero,
		LifetimePurchased: decimal.Zero,
		LifetimeSpent:     decimal.Zero,
		LifetimeCashedOut: decimal.Zero,
		LastActivityAt:    time.Now(),
	}
	if err := r.data.db.WithContext(ctx).Create(&m).Error; err != nil {
		// 并发创建触发唯一索引冲突，按已存在处理
		var existing model.JuiceBalance
		if getErr := r.data.db.WithContext(ctx).Where("uid = ?", uid).First(&existing).Error; getErr == nil {
			return toBizBalance(&existing), nil
		}
		return nil, err
	}
	return toBizBalance(&m), nil
}

// Credit 充值入账：校验 purchase 处于 clearing 状态后余额入账，
// purchase 置为 credited，全部在一个事务内提交
func (r *balanceRepo) Credit(ctx context.Context, uid string, amount decimal.Decimal, purchaseID string) error {
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.JuicePurchase
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("purchase_id = ?", purchaseID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return juiceErrors.ErrPurchaseNotFound(purchaseID)
			}
			return err
		}
		if p.UID != uid {
			return juiceErrors.ErrPurchaseNotFound(purchaseID)
		}
		if p.Status != model.PurchaseStatusClearing {
			return juiceErrors.ErrInvalidPurchaseState(purchaseID, p.Status)
		}
		return creditPurchaseTx(tx, &p)
	})
	if err != nil {
		return err
	}

	invalidateBalanceCache(ctx, r.data, uid)
	return nil
}

// toBizBalance model → biz 领域对象转换
func toBizBalance(m *model.JuiceBalance) *biz.Balance {
	return &biz.Balance{
		UID:               m.UID,
		Balance:           m.Balance,
		LifetimePurchased: m.LifetimePurchased,
		LifetimeSpent:     m.LifetimeSpent,
		LifetimeCashedOut: m.LifetimeCashedOut,
		LastActivityAt:    m.LastActivityAt,
		ExpiresAt:         m.ExpiresAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// creditPurchaseTx 事务内入账一条已锁定、已校验为 clearing 的充值记录：
// 余额与累计购买额同增，purchase 置为 credited
func creditPurchaseTx(tx *gorm.DB, p *model.JuicePurchase) error {
	now := time.Now()

	var b model.JuiceBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uid = ?", p.UID).First(&b).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		b = model.JuiceBalance{
			JuiceBalanceID:    uuid.New().String(),
			UID:               p.UID,
			Balance:           p.JuiceAmount,
			LifetimePurchased: p.JuiceAmount,
			LifetimeSpent:     decimal.Zero,
			LifetimeCashedOut: decimal.Zero,
			LastActivityAt:    now,
		}
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Model(&model.JuiceBalance{}).
			Where("uid = ?", p.UID).
			Updates(map[string]interface{}{
				"balance":            gorm.Expr("balance + ?", p.JuiceAmount),
				"lifetime_purchased": gorm.Expr("lifetime_purchased + ?", p.JuiceAmount),
				"last_activity_at":   now,
			}).Error; err != nil {
			return err
		}
	}

	return tx.Model(&model.JuicePurchase{}).
		Where("purchase_id = ?", p.PurchaseID).
		Updates(map[string]interface{}{
			"status":      model.PurchaseStatusCredited,
			"credited_at": now,
		}).Error
}

// debitBalanceTx 事务内有条件扣减余额：balance >= amount 才扣，
// 不足返回 InsufficientBalance；同步累加对应的累计计数器。
//
// 余额充足性校验必须留在 UPDATE 的 WHERE 条件里，不能改成先读后写：
// 并发扣减同一余额靠行锁串行化这条 UPDATE，余额才不可能被扣成负数
func debitBalanceTx(tx *gorm.DB, uid string, amount decimal.Decimal, kind biz.LedgerKind) error {
	updates := map[string]interface{}{
		"balance":          gorm.Expr("balance - ?", amount),
		"last_activity_at": time.Now(),
	}
	switch kind {
	case biz.LedgerKindSpend:
		updates["lifetime_spent"] = gorm.Expr("lifetime_spent + ?", amount)
	case biz.LedgerKindCashOut:
		updates["lifetime_cashed_out"] = gorm.Expr("lifetime_cashed_out + ?", amount)
	default:
		return fmt.Errorf("unknown ledger kind: %s", kind)
	}

	result := tx.Model(&model.JuiceBalance{}).
		Where("uid = ? AND balance >= ?", uid, amount).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 行不存在或余额不足，对调用方等价
		return juiceErrors.ErrInsufficientBalance(uid)
	}
	return nil
}

// refundBalanceTx 事务内退回余额并回冲对应的累计计数器
func refundBalanceTx(tx *gorm.DB, uid string, amount decimal.Decimal, kind biz.LedgerKind) error {
	updates := map[string]interface{}{
		"balance":          gorm.Expr("balance + ?", amount),
		"last_activity_at": time.Now(),
	}
	switch kind {
	case biz.LedgerKindSpend:
		updates["lifetime_spent"] = gorm.Expr("lifetime_spent - ?", amount)
	case biz.LedgerKindCashOut:
		updates["lifetime_cashed_out"] = gorm.Expr("lifetime_cashed_out - ?", amount)
	default:
		return fmt.Errorf("unknown ledger kind: %s", kind)
	}

	result := tx.Model(&model.JuiceBalance{}).
		Where("uid = ?", uid).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("refund target balance not found: uid=%s", uid)
	}
	return nil
}

// encodeBalanceCache 序列化完整余额行用于缓存。
// 缓存必须无损：命中和回源返回的字段集合一致，累计计数器不能丢。
func encodeBalanceCache(b *biz.Balance) ([]byte, error) {
	return json.Marshal(b)
}

// decodeBalanceCache 反序列化缓存的余额行；
// 解析失败或 uid 不匹配的条目按未命中处理
func decodeBalanceCache(payload []byte, uid string) (*biz.Balance, bool) {
	var b biz.Balance
	if err := json.Unmarshal(payload, &b); err != nil || b.UID != uid {
		return nil, false
	}
	return &b, true
}

// invalidateBalanceCache 余额变动后删除缓存，下次查询回源重建
func invalidateBalanceCache(ctx context.Context, data *Data, uid string) {
	balanceKey := fmt.Sprintf("%s%s", constants.RedisKeyBalance, uid)
	if err := data.rdb.Del(ctx, balanceKey).Err(); err != nil {
		// 缓存删除失败不影响主流程，TTL 到期后自然失效
		log.Warnf("failed to invalidate balance cache: uid=%s, error=%v", uid, err)
	}
}
