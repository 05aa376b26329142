package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// JuiceBalance 用户储值余额表
//
// 不变式：balance = lifetime_purchased - lifetime_spent - lifetime_cashed_out
// （逻辑约束，由事务保证，不由 schema 强制）
type JuiceBalance struct {
	JuiceBalanceID    string          `gorm:"primaryKey;type:varchar(36)"`
	UID               string          `gorm:"uniqueIndex;type:varchar(36);not null"`
	Balance           decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0.00"`
	LifetimePurchased decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0.00"`
	LifetimeSpent     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0.00"`
	LifetimeCashedOut decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0.00"`
	LastActivityAt    time.Time       `gorm:"index;not null"`
	ExpiresAt         *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (JuiceBalance) TableName() string {
	return "juice_balance"
}
