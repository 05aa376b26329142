// Package errors 定义 Juice Service 的业务错误。
//
// 错误基于 kratos errors 构建，reason 按模块划分：
//
//	BALANCE_*   余额模块
//	PURCHASE_*  充值模块
//	SPEND_*     消费模块
//	CASH_OUT_*  提现模块
//	QUOTE_*     价格模块
//	CHAIN_*     链上结算模块
package errors

import (
	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// 错误 reason 常量
const (
	ReasonInsufficientBalance  = "BALANCE_INSUFFICIENT"
	ReasonPurchaseNotFound     = "PURCHASE_NOT_FOUND"
	ReasonInvalidPurchaseState = "PURCHASE_INVALID_STATE"
	ReasonSpendNotFound        = "SPEND_NOT_FOUND"
	ReasonSpendAlreadySettled  = "SPEND_ALREADY_SETTLED"
	ReasonCashOutNotFound      = "CASH_OUT_NOT_FOUND"
	ReasonInvalidCashOutState  = "CASH_OUT_INVALID_STATE"
	ReasonSettlementFailed     = "SETTLEMENT_FAILED"
	ReasonStaleQuote           = "QUOTE_STALE"
	ReasonQuoteOutOfRange      = "QUOTE_OUT_OF_RANGE"
	ReasonChainNotConfigured   = "CHAIN_NOT_CONFIGURED"
)

// ErrInsufficientBalance 余额不足
func ErrInsufficientBalance(uid string) error {
	return kerrors.New(409, ReasonInsufficientBalance, "insufficient balance for user "+uid)
}

// ErrPurchaseNotFound 充值记录不存在
func ErrPurchaseNotFound(id string) error {
	return kerrors.New(404, ReasonPurchaseNotFound, "purchase not found: "+id)
}

// ErrInvalidPurchaseState 充值记录状态不允许该操作
func ErrInvalidPurchaseState(id, status string) error {
	return kerrors.New(409, ReasonInvalidPurchaseState, "purchase "+id+" is in state "+status)
}

// ErrSpendNotFound 消费记录不存在
func ErrSpendNotFound(id string) error {
	return kerrors.New(404, ReasonSpendNotFound, "spend not found: "+id)
}

// ErrSpendAlreadySettled 消费记录已终态，不能再次结算
func ErrSpendAlreadySettled(id, status string) error {
	return kerrors.New(409, ReasonSpendAlreadySettled, "spend "+id+" already settled with status "+status)
}

// ErrCashOutNotFound 提现记录不存在（含不属于该用户的情况）
func ErrCashOutNotFound(id string) error {
	return kerrors.New(404, ReasonCashOutNotFound, "cash out not found: "+id)
}

// ErrInvalidCashOutState 提现记录状态不允许该操作
func ErrInvalidCashOutState(id, status string) error {
	return kerrors.New(409, ReasonInvalidCashOutState, "cash out "+id+" is in state "+status)
}

// ErrSettlementFailed 手动触发的结算尝试失败
func ErrSettlementFailed(id, msg string) error {
	return kerrors.New(500, ReasonSettlementFailed, "settlement failed for "+id+": "+msg)
}

// ErrStaleQuote 报价过期
func ErrStaleQuote(age string) error {
	return kerrors.New(500, ReasonStaleQuote, "price quote is stale: age "+age)
}

// ErrQuoteOutOfRange 报价超出合理区间
func ErrQuoteOutOfRange(rate string) error {
	return kerrors.New(500, ReasonQuoteOutOfRange, "price quote out of plausible range: "+rate)
}

// ErrChainNotConfigured 目标链未配置出账客户端
func ErrChainNotConfigured(chainID int64) error {
	return kerrors.Newf(500, ReasonChainNotConfigured, "no chain client configured for chain %d", chainID)
}

// IsInsufficientBalance 是否余额不足错误
func IsInsufficientBalance(err error) bool {
	return kerrors.Reason(err) == ReasonInsufficientBalance
}

// IsPurchaseNotFound 是否充值记录不存在错误
func IsPurchaseNotFound(err error) bool {
	return kerrors.Reason(err) == ReasonPurchaseNotFound
}

// IsInvalidPurchaseState 是否充值状态错误
func IsInvalidPurchaseState(err error) bool {
	return kerrors.Reason(err) == ReasonInvalidPurchaseState
}

// IsSpendAlreadySettled 是否重复结算错误
func IsSpendAlreadySettled(err error) bool {
	return kerrors.Reason(err) == ReasonSpendAlreadySettled
}

// IsCashOutNotFound 是否提现记录不存在错误
func IsCashOutNotFound(err error) bool {
	return kerrors.Reason(err) == ReasonCashOutNotFound
}

// IsInvalidCashOutState 是否提现状态错误
func IsInvalidCashOutState(err error) bool {
	return kerrors.Reason(err) == ReasonInvalidCashOutState
}

// IsSettlementFailed 是否结算失败错误
func IsSettlementFailed(err error) bool {
	return kerrors.Reason(err) == ReasonSettlementFailed
}

// IsStaleQuote 是否报价过期错误
func IsStaleQuote(err error) bool {
	return kerrors.Reason(err) == ReasonStaleQuote
}

// IsQuoteOutOfRange 是否报价越界错误
func IsQuoteOutOfRange(err error) bool {
	return kerrors.Reason(err) == ReasonQuoteOutOfRange
}

// IsChainNotConfigured 是否链未配置错误
func IsChainNotConfigured(err error) bool {
	return kerrors.Reason(err) == ReasonChainNotConfigured
}
