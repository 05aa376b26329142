package model

import (
	"time"

	"juice-service/internal/constants"

	"github.com/shopspring/decimal"
)

// 消费状态常量（引用 constants 包中的常量，保持一致性）
const (
	SpendStatusPending   = constants.SpendStatusPending
	SpendStatusExecuting = constants.SpendStatusExecuting
	SpendStatusCompleted = constants.SpendStatusCompleted
	SpendStatusFailed    = constants.SpendStatusFailed
	SpendStatusRefunded  = constants.SpendStatusRefunded
)

// JuiceSpend 消费记录表（向第三方项目的出账意向）
//
// 创建时即扣减余额，链上结算异步完成；结算彻底失败时退回余额。
type JuiceSpend struct {
	SpendID            string          `gorm:"primaryKey;type:varchar(36)"`
	UID                string          `gorm:"type:varchar(36);not null;index"`
	ProjectID          int64           `gorm:"not null"`
	ChainID            int64           `gorm:"not null"`
	BeneficiaryAddress string          `gorm:"type:varchar(64);not null"`
	Memo               string          `gorm:"type:varchar(255)"`
	JuiceAmount        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status             string          `gorm:"type:enum('pending','executing','completed','failed','refunded');not null;default:'pending';index"`
	TxHash             string          `gorm:"type:varchar(80)"`
	CryptoAmount       decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	Rate               decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"` // 结算时使用的汇率
	TokensReceived     decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0"`
	ErrorMessage       string          `gorm:"type:varchar(512)"`
	RetryCount         int             `gorm:"not null;default:0"`
	LastRetryAt        *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (JuiceSpend) TableName() string {
	return "juice_spend"
}
