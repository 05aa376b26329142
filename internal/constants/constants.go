package constants

// Redis Key 前缀常量
const (
	// RedisKeyBalance 余额缓存 key 前缀
	RedisKeyBalance = "juice:balance:"
	// RedisKeySpendLock 手动消费结算锁 key 前缀
	RedisKeySpendLock = "juice:spend:lock:"
	// RedisKeyCashOutLock 手动提现结算锁 key 前缀
	RedisKeyCashOutLock = "juice:cashout:lock:"
)

// 账本变动类型常量（决定调整哪个累计计数器）
const (
	// LedgerKindSpend 消费
	LedgerKindSpend = "spend"
	// LedgerKindCashOut 提现
	LedgerKindCashOut = "cash_out"
)

// 充值（Purchase）状态常量
const (
	// PurchaseStatusPending 待支付
	PurchaseStatusPending = "pending"
	// PurchaseStatusClearing 清算中（等待结算延迟期满）
	PurchaseStatusClearing = "clearing"
	// PurchaseStatusCredited 已入账
	PurchaseStatusCredited = "credited"
	// PurchaseStatusDisputed 争议中
	PurchaseStatusDisputed = "disputed"
	// PurchaseStatusRefunded 已退款
	PurchaseStatusRefunded = "refunded"
)

// 消费（Spend）状态常量
const (
	// SpendStatusPending 待结算
	SpendStatusPending = "pending"
	// SpendStatusExecuting 链上执行中
	SpendStatusExecuting = "executing"
	// SpendStatusCompleted 已完成
	SpendStatusCompleted = "completed"
	// SpendStatusFailed 已失败（重试耗尽，余额已退回）
	SpendStatusFailed = "failed"
	// SpendStatusRefunded 已退款
	SpendStatusRefunded = "refunded"
)

// 提现（CashOut）状态常量
const (
	// CashOutStatusPending 待结算
	CashOutStatusPending = "pending"
	// CashOutStatusProcessing 链上执行中
	CashOutStatusProcessing = "processing"
	// CashOutStatusCompleted 已完成
	CashOutStatusCompleted = "completed"
	// CashOutStatusFailed 已失败（重试耗尽，余额已退回）
	CashOutStatusFailed = "failed"
	// CashOutStatusCancelled 用户已取消
	CashOutStatusCancelled = "cancelled"
)

// 支付回调事件类型常量（外部支付服务商）
const (
	// PaymentEventSettled 支付成功
	PaymentEventSettled = "payment.settled"
	// PaymentEventDisputed 支付争议
	PaymentEventDisputed = "payment.disputed"
	// PaymentEventRefunded 支付退款
	PaymentEventRefunded = "payment.refunded"
)

// 结算队列常量（用于指标）
const (
	// SettlementQueueSpend 消费队列
	SettlementQueueSpend = "spend"
	// SettlementQueueCashOut 提现队列
	SettlementQueueCashOut = "cash_out"
)

// 批处理结果常量（用于指标）
const (
	// BatchResultSucceeded 成功
	BatchResultSucceeded = "succeeded"
	// BatchResultFailed 失败
	BatchResultFailed = "failed"
	// BatchResultRetried 等待重试
	BatchResultRetried = "retried"
)

// 锁结果常量（用于指标）
const (
	// LockResultSuccess 成功
	LockResultSuccess = "success"
	// LockResultFailed 失败
	LockResultFailed = "failed"
)
