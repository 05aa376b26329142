package service

import (
	"context"
	"time"

	"juice-service/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// JuiceService 面向前端/开发者的服务
type JuiceService struct {
	balanceUC *biz.BalanceUseCase
	spendUC   *biz.SpendUseCase
	cashOutUC *biz.CashOutUseCase
	log       *log.Helper
}

// NewJuiceService 创建 JuiceService
func NewJuiceService(
	balanceUC *biz.BalanceUseCase,
	spendUC *biz.SpendUseCase,
	cashOutUC *biz.CashOutUseCase,
	logger log.Logger,
) *JuiceService {
	return &JuiceService{
		balanceUC: balanceUC,
		spendUC:   spendUC,
		cashOutUC: cashOutUC,
		log:       log.NewHelper(logger),
	}
}

// GetBalanceReply 余额查询响应
type GetBalanceReply struct {
	UID               string `json:"uid"`
	Balance           string `json:"balance"`
	LifetimePurchased string `json:"lifetime_purchased"`
	LifetimeSpent     string `json:"lifetime_spent"`
	LifetimeCashedOut string `json:"lifetime_cashed_out"`
	LastActivityAt    string `json:"last_activity_at,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
}

// GetBalance 获取用户余额
func (s *JuiceService) GetBalance(ctx context.Context, uid string) (*GetBalanceReply, error) {
	b, err := s.balanceUC.GetBalance(ctx, uid)
	if err != nil {
		s.log.Errorf("GetBalance failed: %v", err)
		return nil, err
	}

	reply := &GetBalanceReply{
		UID:               b.UID,
		Balance:           b.Balance.String(),
		LifetimePurchased: b.LifetimePurchased.String(),
		LifetimeSpent:     b.LifetimeSpent.String(),
		LifetimeCashedOut: b.LifetimeCashedOut.String(),
	}
	if !b.LastActivityAt.IsZero() {
		reply.LastActivityAt = b.LastActivityAt.Format(time.RFC3339)
	}
	if b.ExpiresAt != nil {
		reply.ExpiresAt = b.ExpiresAt.Format(time.RFC3339)
	}
	return reply, nil
}

// CreateSpendRequest 创建消费请求
type CreateSpendRequest struct {
	UID                string `json:"uid"`
	ProjectID          int64  `json:"project_id"`
	ChainID            int64  `json:"chain_id,omitempty"`
	BeneficiaryAddress string `json:"beneficiary_address"`
	Memo               string `json:"memo,omitempty"`
	JuiceAmount        string `json:"juice_amount"`
}

// CreateSpendReply 创建消费响应
type CreateSpendReply struct {
	SpendID string `json:"spend_id"`
	Status  string `json:"status"`
}

// CreateSpend 用储值向第三方项目付款
func (s *JuiceService) CreateSpend(ctx context.Context, req *CreateSpendRequest) (*CreateSpendReply, error) {
	amount, err := parsePositiveAmount(req.JuiceAmount)
	if err != nil {
		return nil, err
	}

	spendID, err := s.spendUC.SpendJuice(ctx, &biz.SpendJuiceParams{
		UID:                req.UID,
		ProjectID:          req.ProjectID,
		ChainID:            req.ChainID,
		BeneficiaryAddress: req.BeneficiaryAddress,
		Memo:               req.Memo,
		JuiceAmount:        amount,
	})
	if err != nil {
		s.log.Errorf("CreateSpend failed: %v", err)
		return nil, err
	}

	return &CreateSpendReply{
		SpendID: spendID,
		Status:  "pending",
	}, nil
}

// SpendReply 消费记录响应
type SpendReply struct {
	SpendID            string `json:"spend_id"`
	UID                string `json:"uid"`
	ProjectID          int64  `json:"project_id"`
	ChainID            int64  `json:"chain_id"`
	BeneficiaryAddress string `json:"beneficiary_address"`
	Memo               string `json:"memo,omitempty"`
	JuiceAmount        string `json:"juice_amount"`
	Status             string `json:"status"`
	TxHash             string `json:"tx_hash,omitempty"`
	CryptoAmount       string `json:"crypto_amount,omitempty"`
	Rate               string `json:"rate,omitempty"`
	TokensReceived     string `json:"tokens_received,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
	RetryCount         int    `json:"retry_count"`
	CreatedAt          string `json:"created_at"`
}

// GetSpend 查询单条消费记录
func (s *JuiceService) GetSpend(ctx context.Context, spendID string) (*SpendReply, error) {
	sp, err := s.spendUC.GetSpend(ctx, spendID)
	if err != nil {
		return nil, err
	}
	return toSpendReply(sp), nil
}

// ListSpendsReply 消费记录列表响应
type ListSpendsReply struct {
	Spends []*SpendReply `json:"spends"`
	Total  int64         `json:"total"`
}

// ListSpends 分页查询消费记录
func (s *JuiceService) ListSpends(ctx context.Context, uid, status string, page, pageSize int) (*ListSpendsReply, error) {
	spends, total, err := s.spendUC.ListSpends(ctx, uid, status, page, pageSize)
	if err != nil {
		s.log.Errorf("ListSpends failed: %v", err)
		return nil, err
	}

	reply := &ListSpendsReply{
		Spends: make([]*SpendReply, 0, len(spends)),
		Total:  total,
	}
	for _, sp := range spends {
		reply.Spends = append(reply.Spends, toSpendReply(sp))
	}
	return reply, nil
}

// InitiateCashOutRequest 发起提现请求
type InitiateCashOutRequest struct {
	UID                string `json:"uid"`
	ChainID            int64  `json:"chain_id,omitempty"`
	DestinationAddress string `json:"destination_address"`
	Memo               string `json:"memo,omitempty"`
	JuiceAmount        string `json:"juice_amount"`
}

// InitiateCashOutReply 发起提现响应
type InitiateCashOutReply struct {
	CashOutID string `json:"cash_out_id"`
	Status    string `json:"status"`
}

// InitiateCashOut 发起提现
func (s *JuiceService) InitiateCashOut(ctx context.Context, req *InitiateCashOutRequest) (*InitiateCashOutReply, error) {
	amount, err := parsePositiveAmount(req.JuiceAmount)
	if err != nil {
		return nil, err
	}

	cashOutID, err := s.cashOutUC.InitiateCashOut(ctx, &biz.InitiateCashOutParams{
		UID:                req.UID,
		ChainID:            req.ChainID,
		DestinationAddress: req.DestinationAddress,
		Memo:               req.Memo,
		JuiceAmount:        amount,
	})
	if err != nil {
		s.log.Errorf("InitiateCashOut failed: %v", err)
		return nil, err
	}

	return &InitiateCashOutReply{
		CashOutID: cashOutID,
		Status:    "pending",
	}, nil
}

// CancelCashOutRequest 取消提现请求
type CancelCashOutRequest struct {
	UID string `json:"uid"`
}

// CancelCashOutReply 取消提现响应
type CancelCashOutReply struct {
	CashOutID string `json:"cash_out_id"`
	Status    string `json:"status"`
}

// CancelCashOut 取消提现（仅限 pending）
func (s *JuiceService) CancelCashOut(ctx context.Context, cashOutID, uid string) (*CancelCashOutReply, error) {
	if err := s.cashOutUC.CancelCashOut(ctx, cashOutID, uid); err != nil {
		s.log.Errorf("CancelCashOut failed: %v", err)
		return nil, err
	}
	return &CancelCashOutReply{
		CashOutID: cashOutID,
		Status:    "cancelled",
	}, nil
}

// CashOutReply 提现记录响应
type CashOutReply struct {
	CashOutID          string `json:"cash_out_id"`
	UID                string `json:"uid"`
	ChainID            int64  `json:"chain_id"`
	DestinationAddress string `json:"destination_address"`
	Memo               string `json:"memo,omitempty"`
	JuiceAmount        string `json:"juice_amount"`
	Status             string `json:"status"`
	AvailableAt        string `json:"available_at"`
	TxHash             string `json:"tx_hash,omitempty"`
	CryptoAmount       string `json:"crypto_amount,omitempty"`
	Rate               string `json:"rate,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
	RetryCount         int    `json:"retry_count"`
	CreatedAt          string `json:"created_at"`
}

// GetCashOut 查询单条提现记录
func (s *JuiceService) GetCashOut(ctx context.Context, cashOutID string) (*CashOutReply, error) {
	c, err := s.cashOutUC.GetCashOut(ctx, cashOutID)
	if err != nil {
		return nil, err
	}
	return toCashOutReply(c), nil
}

// ListCashOutsReply 提现记录列表响应
type ListCashOutsReply struct {
	CashOuts []*CashOutReply `json:"cash_outs"`
	Total    int64           `json:"total"`
}

// ListCashOuts 分页查询提现记录
func (s *JuiceService) ListCashOuts(ctx context.Context, uid, status string, page, pageSize int) (*ListCashOutsReply, error) {
	cashOuts, total, err := s.cashOutUC.ListCashOuts(ctx, uid, status, page, pageSize)
	if err != nil {
		s.log.Errorf("ListCashOuts failed: %v", err)
		return nil, err
	}

	reply := &ListCashOutsReply{
		CashOuts: make([]*CashOutReply, 0, len(cashOuts)),
		Total:    total,
	}
	for _, c := range cashOuts {
		reply.CashOuts = append(reply.CashOuts, toCashOutReply(c))
	}
	return reply, nil
}

func toSpendReply(sp *biz.Spend) *SpendReply {
	r := &SpendReply{
		SpendID:            sp.SpendID,
		UID:                sp.UID,
		ProjectID:          sp.ProjectID,
		ChainID:            sp.ChainID,
		BeneficiaryAddress: sp.BeneficiaryAddress,
		Memo:               sp.Memo,
		JuiceAmount:        sp.JuiceAmount.String(),
		Status:             sp.Status,
		TxHash:             sp.TxHash,
		ErrorMessage:       sp.ErrorMessage,
		RetryCount:         sp.RetryCount,
		CreatedAt:          sp.CreatedAt.Format(time.RFC3339),
	}
	if !sp.CryptoAmount.IsZero() {
		r.CryptoAmount = sp.CryptoAmount.String()
		r.Rate = sp.Rate.String()
		r.TokensReceived = sp.TokensReceived.String()
	}
	return r
}

func toCashOutReply(c *biz.CashOut) *CashOutReply {
	r := &CashOutReply{
		CashOutID:          c.CashOutID,
		UID:                c.UID,
		ChainID:            c.ChainID,
		DestinationAddress: c.DestinationAddress,
		Memo:               c.Memo,
		JuiceAmount:        c.JuiceAmount.String(),
		Status:             c.Status,
		AvailableAt:        c.AvailableAt.Format(time.RFC3339),
		TxHash:             c.TxHash,
		ErrorMessage:       c.ErrorMessage,
		RetryCount:         c.RetryCount,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
	if !c.CryptoAmount.IsZero() {
		r.CryptoAmount = c.CryptoAmount.String()
		r.Rate = c.Rate.String()
	}
	return r
}

// parsePositiveAmount 解析并校验金额字符串必须为正
func parsePositiveAmount(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, kerrors.BadRequest("INVALID_AMOUNT", "invalid amount: "+s)
	}
	if !v.IsPositive() {
		return decimal.Zero, kerrors.BadRequest("INVALID_AMOUNT", "amount must be positive: "+s)
	}
	return v, nil
}
