package biz

import (
	"context"
	"time"

	"juice-service/internal/constants"
	juiceErrors "juice-service/internal/errors"
	"juice-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// BatchResult 批处理结果
type BatchResult struct {
	Succeeded    int // 本轮成功处理数
	Failed       int // 本轮终态失败数（退款或计错）
	StillPending int // 本轮跳过数（重试、被占用、条件不再满足）
}

// SettlementUseCase 结算 worker 业务逻辑
//
// 同一套 claim → quote → transfer → confirm 流程服务消费队列和提现队列，
// 差异只在仓储方法与退款方向。
type SettlementUseCase struct {
	spendRepo   SpendRepo
	cashOutRepo CashOutRepo
	chains      *ChainRegistry
	priceFeed   PriceFeed
	conf        *JuiceConfig
	log         *log.Helper
	metrics     *metrics.JuiceMetrics
}

// NewSettlementUseCase 创建结算 UseCase
func NewSettlementUseCase(
	spendRepo SpendRepo,
	cashOutRepo CashOutRepo,
	chains *ChainRegistry,
	priceFeed PriceFeed,
	conf *JuiceConfig,
	logger log.Logger,
) *SettlementUseCase {
	return &SettlementUseCase{
		spendRepo:   spendRepo,
		cashOutRepo: cashOutRepo,
		chains:      chains,
		priceFeed:   priceFeed,
		conf:        conf,
		log:         log.NewHelper(logger),
		metrics:     metrics.GetMetrics(),
	}
}

// ProcessPendingSpends 批量结算待处理的消费
//
// 默认链未配置客户端时整批短路，返回零进度结果而非错误：
// 记录仍是 pending，配置修复后下一轮自然恢复。
func (uc *SettlementUseCase) ProcessPendingSpends(ctx context.Context, batchSize int) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = uc.conf.BatchSize
	}
	result := &BatchResult{}

	if !uc.chains.Has(uc.chains.DefaultChainID()) {
		uc.log.Warnf("Default chain client not configured, skipping spend settlement: chain_id=%d",
			uc.chains.DefaultChainID())
		return result, nil
	}

	ids, err := uc.spendRepo.ListDueSpendIDs(ctx, uc.conf.MaxRetries, batchSize)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		s, claimed, err := uc.spendRepo.ClaimSpend(ctx, id, uc.conf.MaxRetries)
		if err != nil {
			uc.log.Errorf("ClaimSpend failed: spend_id=%s, error=%v", id, err)
			result.Failed++
			continue
		}
		if !claimed {
			result.StillPending++
			continue
		}
		uc.settleSpend(ctx, s, result)
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		uc.log.Infof("Spend settlement batch completed: succeeded=%d, failed=%d, pending=%d",
			result.Succeeded, result.Failed, result.StillPending)
	}
	return result, nil
}

// ProcessSingleSpend 手动触发单条消费结算（阻塞认领，运营排障入口）
//
// 也是停留在 executing 的记录（如 worker 结算中途崩溃）的恢复路径，
// 操作员需先核对链上是否已出账再触发。
func (uc *SettlementUseCase) ProcessSingleSpend(ctx context.Context, spendID string) error {
	s, err := uc.spendRepo.GetSpend(ctx, spendID)
	if err != nil {
		return err
	}
	// 纯配置问题直接报错，不认领记录也不消耗重试次数
	if !uc.chains.Has(s.ChainID) {
		return juiceErrors.ErrChainNotConfigured(s.ChainID)
	}

	s, err = uc.spendRepo.ClaimSpendBlocking(ctx, spendID)
	if err != nil {
		return err
	}

	result := &BatchResult{}
	uc.settleSpend(ctx, s, result)
	if result.Succeeded == 0 {
		// settleSpend 已把记录转入重试或失败状态并记录了原因
		s2, getErr := uc.spendRepo.GetSpend(ctx, spendID)
		if getErr == nil && s2 != nil {
			return juiceErrors.ErrSettlementFailed(spendID, s2.ErrorMessage)
		}
		return juiceErrors.ErrSettlementFailed(spendID, "settlement attempt failed")
	}
	return nil
}

// settleSpend 结算一条已认领（executing）的消费记录
func (uc *SettlementUseCase) settleSpend(ctx context.Context, s *Spend, result *BatchResult) {
	start := time.Now()
	queue := constants.SettlementQueueSpend

	res, err := uc.executeTransfer(ctx, s.ChainID, s.BeneficiaryAddress, s.JuiceAmount, s.Memo)
	if err != nil {
		uc.handleSpendFailure(ctx, s, err, result)
		return
	}

	if err := uc.spendRepo.CompleteSpend(ctx, s.SpendID, res); err != nil {
		// 链上已出账但落库失败，不能退款也不能自动重试（会重复出账）；
		// 记录停留在 executing，由操作员核对链上结果后走手动触发接口恢复
		uc.log.Errorf("CompleteSpend failed after on-chain transfer: spend_id=%s, tx_hash=%s, error=%v",
			s.SpendID, res.TxHash, err)
		result.Failed++
		uc.observeSettlement(queue, constants.BatchResultFailed, start)
		return
	}

	result.Succeeded++
	uc.observeSettlement(queue, constants.BatchResultSucceeded, start)
	uc.log.Infof("Spend settled: spend_id=%s, tx_hash=%s, crypto_amount=%s, tokens_received=%s",
		s.SpendID, res.TxHash, res.CryptoAmount.String(), res.TokensReceived.String())
}

// handleSpendFailure 失败处理：未达重试上限回到 pending，否则退款并置 failed
func (uc *SettlementUseCase) handleSpendFailure(ctx context.Context, s *Spend, cause error, result *BatchResult) {
	queue := constants.SettlementQueueSpend
	if s.RetryCount+1 >= uc.conf.MaxRetries {
		if err := uc.spendRepo.FailSpendAndRefund(ctx, s.SpendID, cause.Error()); err != nil {
			uc.log.Errorf("FailSpendAndRefund failed: spend_id=%s, error=%v", s.SpendID, err)
			result.Failed++
			return
		}
		uc.log.Warnf("Spend failed permanently, balance refunded: spend_id=%s, retry_count=%d, error=%v",
			s.SpendID, s.RetryCount, cause)
		result.Failed++
		if uc.metrics != nil {
			uc.metrics.SettlementTotal.WithLabelValues(queue, constants.BatchResultFailed).Inc()
			uc.metrics.RefundTotal.WithLabelValues(constants.LedgerKindSpend).Inc()
			amt, _ := s.JuiceAmount.Float64()
			uc.metrics.RefundAmount.WithLabelValues(constants.LedgerKindSpend).Add(amt)
		}
		return
	}

	if err := uc.spendRepo.RetrySpend(ctx, s.SpendID, cause.Error()); err != nil {
		uc.log.Errorf("RetrySpend failed: spend_id=%s, error=%v", s.SpendID, err)
		result.Failed++
		return
	}
	uc.log.Warnf("Spend settlement failed, will retry: spend_id=%s, retry_count=%d, error=%v",
		s.SpendID, s.RetryCount+1, cause)
	result.StillPending++
	if uc.metrics != nil {
		uc.metrics.SettlementTotal.WithLabelValues(queue, constants.BatchResultRetried).Inc()
		uc.metrics.SettlementRetry.WithLabelValues(queue).Inc()
	}
}

// ProcessPendingCashOuts 批量结算已过持有期的提现
func (uc *SettlementUseCase) ProcessPendingCashOuts(ctx context.Context, batchSize int) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = uc.conf.BatchSize
	}
	result := &BatchResult{}

	if !uc.chains.Has(uc.chains.DefaultChainID()) {
		uc.log.Warnf("Default chain client not configured, skipping cash out settlement: chain_id=%d",
			uc.chains.DefaultChainID())
		return result, nil
	}

	ids, err := uc.cashOutRepo.ListDueCashOutIDs(ctx, time.Now(), uc.conf.MaxRetries, batchSize)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		c, claimed, err := uc.cashOutRepo.ClaimCashOut(ctx, id, uc.conf.MaxRetries)
		if err != nil {
			uc.log.Errorf("ClaimCashOut failed: cash_out_id=%s, error=%v", id, err)
			result.Failed++
			continue
		}
		if !claimed {
			result.StillPending++
			continue
		}
		uc.settleCashOut(ctx, c, result)
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		uc.log.Infof("Cash out settlement batch completed: succeeded=%d, failed=%d, pending=%d",
			result.Succeeded, result.Failed, result.StillPending)
	}
	return result, nil
}

// settleCashOut 结算一条已认领（processing）的提现记录
func (uc *SettlementUseCase) settleCashOut(ctx context.Context, c *CashOut, result *BatchResult) {
	start := time.Now()
	queue := constants.SettlementQueueCashOut

	res, err := uc.executeTransfer(ctx, c.ChainID, c.DestinationAddress, c.JuiceAmount, c.Memo)
	if err != nil {
		uc.handleCashOutFailure(ctx, c, err, result)
		return
	}

	if err := uc.cashOutRepo.CompleteCashOut(ctx, c.CashOutID, res); err != nil {
		// 链上已出账但落库失败，不能退款也不能自动重试（会重复出账）；
		// 记录停留在 processing，由操作员核对链上结果后走手动触发接口恢复
		uc.log.Errorf("CompleteCashOut failed after on-chain transfer: cash_out_id=%s, tx_hash=%s, error=%v",
			c.CashOutID, res.TxHash, err)
		result.Failed++
		uc.observeSettlement(queue, constants.BatchResultFailed, start)
		return
	}

	result.Succeeded++
	uc.observeSettlement(queue, constants.BatchResultSucceeded, start)
	uc.log.Infof("Cash out settled: cash_out_id=%s, tx_hash=%s, crypto_amount=%s",
		c.CashOutID, res.TxHash, res.CryptoAmount.String())
}

// ProcessSingleCashOut 手动触发单条提现结算（阻塞认领，运营排障入口）
//
// 也是停留在 processing 的记录（如 worker 结算中途崩溃）唯一的恢复路径，
// 操作员需先核对链上是否已出账再触发。
func (uc *SettlementUseCase) ProcessSingleCashOut(ctx context.Context, cashOutID string) error {
	c, err := uc.cashOutRepo.GetCashOut(ctx, cashOutID)
	if err != nil {
		return err
	}
	// 纯配置问题直接报错，不认领记录也不消耗重试次数
	if !uc.chains.Has(c.ChainID) {
		return juiceErrors.ErrChainNotConfigured(c.ChainID)
	}

	c, err = uc.cashOutRepo.ClaimCashOutBlocking(ctx, cashOutID)
	if err != nil {
		return err
	}

	result := &BatchResult{}
	uc.settleCashOut(ctx, c, result)
	if result.Succeeded == 0 {
		// settleCashOut 已把记录转入重试或失败状态并记录了原因
		c2, getErr := uc.cashOutRepo.GetCashOut(ctx, cashOutID)
		if getErr == nil && c2 != nil {
			return juiceErrors.ErrSettlementFailed(cashOutID, c2.ErrorMessage)
		}
		return juiceErrors.ErrSettlementFailed(cashOutID, "settlement attempt failed")
	}
	return nil
}

// handleCashOutFailure 失败处理：未达重试上限回到 pending，否则退款并置 failed
func (uc *SettlementUseCase) handleCashOutFailure(ctx context.Context, c *CashOut, cause error, result *BatchResult) {
	queue := constants.SettlementQueueCashOut
	if c.RetryCount+1 >= uc.conf.MaxRetries {
		if err := uc.cashOutRepo.FailCashOutAndRefund(ctx, c.CashOutID, cause.Error()); err != nil {
			uc.log.Errorf("FailCashOutAndRefund failed: cash_out_id=%s, error=%v", c.CashOutID, err)
			result.Failed++
			return
		}
		uc.log.Warnf("Cash out failed permanently, balance refunded: cash_out_id=%s, retry_count=%d, error=%v",
			c.CashOutID, c.RetryCount, cause)
		result.Failed++
		if uc.metrics != nil {
			uc.metrics.SettlementTotal.WithLabelValues(queue, constants.BatchResultFailed).Inc()
			uc.metrics.RefundTotal.WithLabelValues(constants.LedgerKindCashOut).Inc()
			amt, _ := c.JuiceAmount.Float64()
			uc.metrics.RefundAmount.WithLabelValues(constants.LedgerKindCashOut).Add(amt)
		}
		return
	}

	if err := uc.cashOutRepo.RetryCashOut(ctx, c.CashOutID, cause.Error()); err != nil {
		uc.log.Errorf("RetryCashOut failed: cash_out_id=%s, error=%v", c.CashOutID, err)
		result.Failed++
		return
	}
	uc.log.Warnf("Cash out settlement failed, will retry: cash_out_id=%s, retry_count=%d, error=%v",
		c.CashOutID, c.RetryCount+1, cause)
	result.StillPending++
	if uc.metrics != nil {
		uc.metrics.SettlementTotal.WithLabelValues(queue, constants.BatchResultRetried).Inc()
		uc.metrics.SettlementRetry.WithLabelValues(queue).Inc()
	}
}

// executeTransfer 取报价、校验、换算并执行链上转账
//
// 报价在每条记录结算时单独获取，保证用的是当下价格而非批次开始时的快照。
func (uc *SettlementUseCase) executeTransfer(ctx context.Context, chainID int64, to string, juiceAmount decimal.Decimal, memo string) (*SettlementResult, error) {
	client, ok := uc.chains.Client(chainID)
	if !ok {
		return nil, juiceErrors.ErrChainNotConfigured(chainID)
	}

	quote, err := uc.priceFeed.GetConversionRate(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateQuote(quote, time.Now(), uc.conf.MaxQuoteAge, uc.conf.RateMin, uc.conf.RateMax); err != nil {
		return nil, err
	}

	cryptoAmount := juiceAmount.Div(quote.Rate)
	txHash, err := client.SubmitTransfer(ctx, &TransferRequest{
		ChainID: chainID,
		To:      to,
		Amount:  cryptoAmount,
		Memo:    memo,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := client.WaitForConfirmation(ctx, txHash)
	if err != nil {
		return nil, err
	}

	return &SettlementResult{
		TxHash:         receipt.TxHash,
		CryptoAmount:   cryptoAmount,
		Rate:           quote.Rate,
		TokensReceived: receipt.TokensReceived,
	}, nil
}

func (uc *SettlementUseCase) observeSettlement(queue, result string, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.SettlementTotal.WithLabelValues(queue, result).Inc()
	uc.metrics.SettlementDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
}
