package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JuiceMetrics 账本与结算服务指标
type JuiceMetrics struct {
	// 结算相关指标
	SettlementTotal    *prometheus.CounterVec   // 结算处理总数（按队列、结果）
	SettlementDuration *prometheus.HistogramVec // 单条结算耗时（按队列）
	SettlementRetry    *prometheus.CounterVec   // 结算重试总数（按队列）

	// 退款相关指标
	RefundTotal  *prometheus.CounterVec // 退款总数（按账本类型）
	RefundAmount *prometheus.CounterVec // 退款金额（按账本类型）

	// 充值入账相关指标
	PurchaseCreditTotal     *prometheus.CounterVec // 入账处理总数（按结果）
	PurchaseCreditAmount    prometheus.Counter     // 入账金额
	PurchaseReversalSkipped prometheus.Counter     // 已入账后到达的争议/退款事件数（无账本处理路径）

	// 出账创建相关指标
	SpendCreateTotal   *prometheus.CounterVec // 消费创建总数（按结果）
	CashOutCreateTotal *prometheus.CounterVec // 提现创建总数（按结果）
	CashOutCancelTotal prometheus.Counter     // 提现取消总数

	// 余额相关指标
	BalanceQueryTotal prometheus.Counter // 余额查询总数

	// 过期清理相关指标
	ExpirationTotal  prometheus.Counter // 过期清零余额数
	ExpirationAmount prometheus.Counter // 过期清零金额

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewJuiceMetrics 创建账本服务指标
func NewJuiceMetrics() *JuiceMetrics {
	return &JuiceMetrics{
		SettlementTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_settlement_total",
				Help: "Total number of settlement attempts",
			},
			[]string{"queue", "result"}, // result: succeeded/failed/retried
		),
		SettlementDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "juice_settlement_duration_seconds",
				Help:    "Duration of single-record settlement",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		SettlementRetry: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_settlement_retry_total",
				Help: "Total number of settlement retries",
			},
			[]string{"queue"},
		),

		RefundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_refund_total",
				Help: "Total number of balance refunds",
			},
			[]string{"kind"}, // kind: spend/cash_out
		),
		RefundAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_refund_amount_total",
				Help: "Total juice amount refunded",
			},
			[]string{"kind"},
		),

		PurchaseCreditTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_purchase_credit_total",
				Help: "Total number of purchase credit attempts",
			},
			[]string{"result"},
		),
		PurchaseCreditAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_purchase_credit_amount_total",
				Help: "Total juice amount credited from purchases",
			},
		),
		PurchaseReversalSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_purchase_reversal_skipped_total",
				Help: "Disputes/refunds arriving after the purchase was already credited",
			},
		),

		SpendCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_spend_create_total",
				Help: "Total number of spend creations",
			},
			[]string{"result"},
		),
		CashOutCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_cash_out_create_total",
				Help: "Total number of cash out creations",
			},
			[]string{"result"},
		),
		CashOutCancelTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_cash_out_cancel_total",
				Help: "Total number of cash out cancellations",
			},
		),

		BalanceQueryTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_balance_query_total",
				Help: "Total number of balance queries",
			},
		),

		ExpirationTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_expiration_total",
				Help: "Total number of balances zeroed by the expiration sweeper",
			},
		),
		ExpirationAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "juice_expiration_amount_total",
				Help: "Total juice amount zeroed by the expiration sweeper",
			},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "juice_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"},
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "juice_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *JuiceMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewJuiceMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *JuiceMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
