package model

import (
	"time"

	"juice-service/internal/constants"

	"github.com/shopspring/decimal"
)

// 提现状态常量（引用 constants 包中的常量，保持一致性）
const (
	CashOutStatusPending    = constants.CashOutStatusPending
	CashOutStatusProcessing = constants.CashOutStatusProcessing
	CashOutStatusCompleted  = constants.CashOutStatusCompleted
	CashOutStatusFailed     = constants.CashOutStatusFailed
	CashOutStatusCancelled  = constants.CashOutStatusCancelled
)

// JuiceCashOut 提现记录表（储值兑回加密货币）
//
// 创建时即扣减余额并设置持有期 available_at，到期后才可结算。
type JuiceCashOut struct {
	CashOutID          string          `gorm:"primaryKey;type:varchar(36)"`
	UID                string          `gorm:"type:varchar(36);not null;index"`
	ChainID            int64           `gorm:"not null"`
	DestinationAddress string          `gorm:"type:varchar(64);not null"`
	Memo               string          `gorm:"type:varchar(255)"`
	JuiceAmount        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status             string          `gorm:"type:enum('pending','processing','completed','failed','cancelled');not null;default:'pending';index:idx_status_available,priority:1"`
	AvailableAt        time.Time       `gorm:"not null;index:idx_status_available,priority:2"` // 持有期释放时间
	TxHash             string          `gorm:"type:varchar(80)"`
	CryptoAmount       decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	Rate               decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	ErrorMessage       string          `gorm:"type:varchar(512)"`
	RetryCount         int             `gorm:"not null;default:0"`
	LastRetryAt        *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (JuiceCashOut) TableName() string {
	return "juice_cash_out"
}
