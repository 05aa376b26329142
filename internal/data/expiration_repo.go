package data

import (
	"context"
	"errors"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// expirationRepo 余额过期清理数据访问
type expirationRepo struct {
	data *Data
	log  *log.Helper
}

// NewExpirationRepo 创建过期清理 repo（返回 biz.ExpirationRepo 接口）
func NewExpirationRepo(data *Data, logger log.Logger) biz.ExpirationRepo {
	return &expirationRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ListExpiredUIDs 查询余额为正且最后活动时间早于 cutoff 的用户
func (r *expirationRepo) ListExpiredUIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var uids []string
	err := r.data.db.WithContext(ctx).Model(&model.JuiceBalance{}).
		Where("balance > 0 AND last_activity_at < ?", cutoff).
		Order("last_activity_at ASC").
		Limit(limit).
		Pluck("uid", &uids).Error
	if err != nil {
		return nil, err
	}
	return uids, nil
}

// ExpireBalance 单事务：余额清零 + 写入审计记录
//
// 加锁后重新检查过期条件，期间发生活动的余额返回 (nil, nil) 跳过。
// 清零金额不回冲任何累计计数器，过期是独立的账本事件，由审计表记录。
func (r *expirationRepo) ExpireBalance(ctx context.Context, uid string, cutoff time.Time) (*biz.ExpiredBalance, error) {
	var expired *biz.ExpiredBalance

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b model.JuiceBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("uid = ? AND balance > 0 AND last_activity_at < ?", uid, cutoff).
			First(&b).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 查询后余额发生了活动，或被其他 worker 占用
				return nil
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&model.JuiceBalance{}).
			Where("uid = ?", uid).
			Updates(map[string]interface{}{
				"balance":    decimal.Zero,
				"expires_at": now,
			}).Error; err != nil {
			return err
		}

		audit := model.CreditExpiration{
			ExpirationID:   uuid.New().String(),
			UID:            uid,
			Amount:         b.Balance,
			LastActivityAt: b.LastActivityAt,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}

		expired = &biz.ExpiredBalance{
			UID:            uid,
			Amount:         b.Balance,
			LastActivityAt: b.LastActivityAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired == nil {
		return nil, nil
	}

	invalidateBalanceCache(ctx, r.data, uid)
	return expired, nil
}
