package model

import (
	"time"

	"juice-service/internal/constants"

	"github.com/shopspring/decimal"
)

// 充值状态常量（引用 constants 包中的常量，保持一致性）
const (
	PurchaseStatusPending  = constants.PurchaseStatusPending
	PurchaseStatusClearing = constants.PurchaseStatusClearing
	PurchaseStatusCredited = constants.PurchaseStatusCredited
	PurchaseStatusDisputed = constants.PurchaseStatusDisputed
	PurchaseStatusRefunded = constants.PurchaseStatusRefunded
)

// JuicePurchase 充值记录表（法币购买储值）
type JuicePurchase struct {
	PurchaseID  string          `gorm:"primaryKey;type:varchar(36)"`
	UID         string          `gorm:"type:varchar(36);not null;index"`
	PaymentRef  string          `gorm:"type:varchar(64);uniqueIndex;not null"` // 支付服务商的外部订单号（幂等键）
	FiatAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	JuiceAmount decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status      string          `gorm:"type:enum('pending','clearing','credited','disputed','refunded');not null;default:'pending';index:idx_status_clears,priority:1"`
	ClearsAt    time.Time       `gorm:"not null;index:idx_status_clears,priority:2"` // 最早可入账时间
	CreditedAt  *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (JuicePurchase) TableName() string {
	return "juice_purchase"
}
