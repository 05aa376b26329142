package service

import (
	"context"
	"time"

	"juice-service/internal/biz"
	"juice-service/internal/constants"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// JuiceInternalService 面向支付服务商回调与运营后台的内部服务
type JuiceInternalService struct {
	purchaseUC   *biz.PurchaseUseCase
	settlementUC *biz.SettlementUseCase
	statsUC      *biz.StatsUseCase
	log          *log.Helper
}

// NewJuiceInternalService 创建 JuiceInternalService
func NewJuiceInternalService(
	purchaseUC *biz.PurchaseUseCase,
	settlementUC *biz.SettlementUseCase,
	statsUC *biz.StatsUseCase,
	logger log.Logger,
) *JuiceInternalService {
	return &JuiceInternalService{
		purchaseUC:   purchaseUC,
		settlementUC: settlementUC,
		statsUC:      statsUC,
		log:          log.NewHelper(logger),
	}
}

// PaymentCallbackRequest 支付服务商回调请求
type PaymentCallbackRequest struct {
	EventType   string `json:"event_type"` // payment.settled / payment.disputed / payment.refunded
	PaymentRef  string `json:"payment_ref"`
	UID         string `json:"uid,omitempty"`
	FiatAmount  string `json:"fiat_amount,omitempty"`
	JuiceAmount string `json:"juice_amount,omitempty"`
}

// PaymentCallbackReply 支付服务商回调响应
type PaymentCallbackReply struct {
	PurchaseID string `json:"purchase_id,omitempty"`
	Handled    bool   `json:"handled"`
}

// PaymentCallback 处理支付服务商回调事件
func (s *JuiceInternalService) PaymentCallback(ctx context.Context, req *PaymentCallbackRequest) (*PaymentCallbackReply, error) {
	switch req.EventType {
	case constants.PaymentEventSettled:
		fiat, err := parsePositiveAmount(req.FiatAmount)
		if err != nil {
			return nil, err
		}
		juice, err := parsePositiveAmount(req.JuiceAmount)
		if err != nil {
			return nil, err
		}
		purchaseID, err := s.purchaseUC.CreatePurchase(ctx, &biz.CreatePurchaseParams{
			UID:         req.UID,
			PaymentRef:  req.PaymentRef,
			FiatAmount:  fiat,
			JuiceAmount: juice,
		})
		if err != nil {
			s.log.Errorf("PaymentCallback create purchase failed: %v", err)
			return nil, err
		}
		return &PaymentCallbackReply{PurchaseID: purchaseID, Handled: true}, nil

	case constants.PaymentEventDisputed:
		if err := s.purchaseUC.MarkDisputed(ctx, req.PaymentRef); err != nil {
			s.log.Errorf("PaymentCallback mark disputed failed: %v", err)
			return nil, err
		}
		return &PaymentCallbackReply{Handled: true}, nil

	case constants.PaymentEventRefunded:
		if err := s.purchaseUC.MarkRefunded(ctx, req.PaymentRef); err != nil {
			s.log.Errorf("PaymentCallback mark refunded failed: %v", err)
			return nil, err
		}
		return &PaymentCallbackReply{Handled: true}, nil
	}

	return nil, kerrors.BadRequest("UNKNOWN_EVENT_TYPE", "unknown payment event type: "+req.EventType)
}

// ProcessSpendReply 手动结算响应
type ProcessSpendReply struct {
	SpendID string `json:"spend_id"`
	Status  string `json:"status"`
}

// ProcessSpend 手动触发单条消费结算
func (s *JuiceInternalService) ProcessSpend(ctx context.Context, spendID string) (*ProcessSpendReply, error) {
	if err := s.settlementUC.ProcessSingleSpend(ctx, spendID); err != nil {
		s.log.Errorf("ProcessSpend failed: spend_id=%s, error=%v", spendID, err)
		return nil, err
	}
	return &ProcessSpendReply{
		SpendID: spendID,
		Status:  "completed",
	}, nil
}

// ProcessCashOutReply 手动提现结算响应
type ProcessCashOutReply struct {
	CashOutID string `json:"cash_out_id"`
	Status    string `json:"status"`
}

// ProcessCashOut 手动触发单条提现结算
func (s *JuiceInternalService) ProcessCashOut(ctx context.Context, cashOutID string) (*ProcessCashOutReply, error) {
	if err := s.settlementUC.ProcessSingleCashOut(ctx, cashOutID); err != nil {
		s.log.Errorf("ProcessCashOut failed: cash_out_id=%s, error=%v", cashOutID, err)
		return nil, err
	}
	return &ProcessCashOutReply{
		CashOutID: cashOutID,
		Status:    "completed",
	}, nil
}

// DashboardStatsReply 运营看板统计响应
type DashboardStatsReply struct {
	TotalOutstanding    string `json:"total_outstanding"`
	TotalPurchased      string `json:"total_purchased"`
	TotalSpent          string `json:"total_spent"`
	TotalCashedOut      string `json:"total_cashed_out"`
	PendingSpends       int64  `json:"pending_spends"`
	PendingCashOuts     int64  `json:"pending_cash_outs"`
	ClearingPurchases   int64  `json:"clearing_purchases"`
	FailedSettlements   int64  `json:"failed_settlements"`
	TodayPurchaseAmount string `json:"today_purchase_amount"`
	TodaySpendAmount    string `json:"today_spend_amount"`
	WeekPurchaseAmount  string `json:"week_purchase_amount"`
	WeekSpendAmount     string `json:"week_spend_amount"`
	GeneratedAt         string `json:"generated_at"`
}

// GetDashboardStats 获取运营看板统计
func (s *JuiceInternalService) GetDashboardStats(ctx context.Context) (*DashboardStatsReply, error) {
	stats, err := s.statsUC.GetDashboardStats(ctx)
	if err != nil {
		s.log.Errorf("GetDashboardStats failed: %v", err)
		return nil, err
	}

	return &DashboardStatsReply{
		TotalOutstanding:    stats.TotalOutstanding.String(),
		TotalPurchased:      stats.TotalPurchased.String(),
		TotalSpent:          stats.TotalSpent.String(),
		TotalCashedOut:      stats.TotalCashedOut.String(),
		PendingSpends:       stats.PendingSpends,
		PendingCashOuts:     stats.PendingCashOuts,
		ClearingPurchases:   stats.ClearingPurchases,
		FailedSettlements:   stats.FailedSettlements,
		TodayPurchaseAmount: stats.TodayPurchaseAmount.String(),
		TodaySpendAmount:    stats.TodaySpendAmount.String(),
		WeekPurchaseAmount:  stats.WeekPurchaseAmount.String(),
		WeekSpendAmount:     stats.WeekSpendAmount.String(),
		GeneratedAt:         time.Now().Format(time.RFC3339),
	}, nil
}

// ListPurchasesReply 充值记录列表响应
type ListPurchasesReply struct {
	Purchases []*PurchaseReply `json:"purchases"`
	Total     int64            `json:"total"`
}

// PurchaseReply 充值记录响应
type PurchaseReply struct {
	PurchaseID  string `json:"purchase_id"`
	UID         string `json:"uid"`
	PaymentRef  string `json:"payment_ref"`
	FiatAmount  string `json:"fiat_amount"`
	JuiceAmount string `json:"juice_amount"`
	Status      string `json:"status"`
	ClearsAt    string `json:"clears_at"`
	CreditedAt  string `json:"credited_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ListPurchases 分页查询充值记录
func (s *JuiceInternalService) ListPurchases(ctx context.Context, uid, status string, page, pageSize int) (*ListPurchasesReply, error) {
	purchases, total, err := s.purchaseUC.ListPurchases(ctx, uid, status, page, pageSize)
	if err != nil {
		s.log.Errorf("ListPurchases failed: %v", err)
		return nil, err
	}

	reply := &ListPurchasesReply{
		Purchases: make([]*PurchaseReply, 0, len(purchases)),
		Total:     total,
	}
	for _, p := range purchases {
		pr := &PurchaseReply{
			PurchaseID:  p.PurchaseID,
			UID:         p.UID,
			PaymentRef:  p.PaymentRef,
			FiatAmount:  p.FiatAmount.String(),
			JuiceAmount: p.JuiceAmount.String(),
			Status:      p.Status,
			ClearsAt:    p.ClearsAt.Format(time.RFC3339),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		}
		if p.CreditedAt != nil {
			pr.CreditedAt = p.CreditedAt.Format(time.RFC3339)
		}
		reply.Purchases = append(reply.Purchases, pr)
	}
	return reply, nil
}
