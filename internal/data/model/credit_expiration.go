package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditExpiration 余额过期审计表（仅追加）
//
// 过期清理器清零一个长期未活跃余额时写入一条记录。
type CreditExpiration struct {
	ExpirationID   string          `gorm:"primaryKey;type:varchar(36)"`
	UID            string          `gorm:"type:varchar(36);not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	LastActivityAt time.Time       `gorm:"not null"` // 过期时刻的最后活跃时间
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (CreditExpiration) TableName() string {
	return "credit_expiration"
}
