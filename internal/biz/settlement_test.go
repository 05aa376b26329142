package biz

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"juice-service/internal/constants"
	juiceErrors "juice-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

func testConfig() *JuiceConfig {
	return &JuiceConfig{
		SettlementDelay:  72 * time.Hour,
		CashOutHoldDelay: 24 * time.Hour,
		MaxRetries:       3,
		BatchSize:        50,
		RetentionWindow:  180 * 24 * time.Hour,
		DefaultChainID:   8453,
		MaxQuoteAge:      5 * time.Minute,
		RateMin:          decimal.RequireFromString("0.01"),
		RateMax:          decimal.RequireFromString("1000000"),
	}
}

// fakeSpendRepo 内存实现，按结算 worker 的调用序演进状态
type fakeSpendRepo struct {
	spends      map[string]*Spend
	refunds     map[string]int // FailSpendAndRefund 调用次数
	claimErr    error
	completeErr error
}

func newFakeSpendRepo(spends ...*Spend) *fakeSpendRepo {
	r := &fakeSpendRepo{
		spends:  make(map[string]*Spend),
		refunds: make(map[string]int),
	}
	for _, s := range spends {
		r.spends[s.SpendID] = s
	}
	return r
}

func (r *fakeSpendRepo) CreateSpend(ctx context.Context, s *Spend) error {
	if s.SpendID == "" {
		s.SpendID = fmt.Sprintf("sp-%d", len(r.spends)+1)
	}
	r.spends[s.SpendID] = s
	return nil
}

func (r *fakeSpendRepo) GetSpend(ctx context.Context, spendID string) (*Spend, error) {
	s, ok := r.spends[spendID]
	if !ok {
		return nil, juiceErrors.ErrSpendNotFound(spendID)
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSpendRepo) ListDueSpendIDs(ctx context.Context, maxRetries, limit int) ([]string, error) {
	var ids []string
	for id, s := range r.spends {
		if s.Status == constants.SpendStatusPending && s.RetryCount < maxRetries {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeSpendRepo) ClaimSpend(ctx context.Context, spendID string, maxRetries int) (*Spend, bool, error) {
	if r.claimErr != nil {
		return nil, false, r.claimErr
	}
	s, ok := r.spends[spendID]
	if !ok || s.Status != constants.SpendStatusPending || s.RetryCount >= maxRetries {
		return nil, false, nil
	}
	s.Status = constants.SpendStatusExecuting
	copied := *s
	return &copied, true, nil
}

func (r *fakeSpendRepo) ClaimSpendBlocking(ctx context.Context, spendID string) (*Spend, error) {
	s, ok := r.spends[spendID]
	if !ok {
		return nil, juiceErrors.ErrSpendNotFound(spendID)
	}
	switch s.Status {
	case constants.SpendStatusCompleted, constants.SpendStatusFailed, constants.SpendStatusRefunded:
		return nil, juiceErrors.ErrSpendAlreadySettled(spendID, s.Status)
	}
	s.Status = constants.SpendStatusExecuting
	copied := *s
	return &copied, nil
}

func (r *fakeSpendRepo) CompleteSpend(ctx context.Context, spendID string, res *SettlementResult) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	s := r.spends[spendID]
	s.Status = constants.SpendStatusCompleted
	s.TxHash = res.TxHash
	s.CryptoAmount = res.CryptoAmount
	s.Rate = res.Rate
	s.TokensReceived = res.TokensReceived
	return nil
}

func (r *fakeSpendRepo) RetrySpend(ctx context.Context, spendID, errMsg string) error {
	s := r.spends[spendID]
	s.Status = constants.SpendStatusPending
	s.RetryCount++
	s.ErrorMessage = errMsg
	return nil
}

func (r *fakeSpendRepo) FailSpendAndRefund(ctx context.Context, spendID, errMsg string) error {
	s := r.spends[spendID]
	if s.Status != constants.SpendStatusExecuting {
		return fmt.Errorf("fail-and-refund target not in executing state: %s", spendID)
	}
	s.Status = constants.SpendStatusFailed
	s.ErrorMessage = errMsg
	r.refunds[spendID]++
	return nil
}

func (r *fakeSpendRepo) ListSpends(ctx context.Context, uid, status string, page, pageSize int) ([]*Spend, int64, error) {
	var out []*Spend
	for _, s := range r.spends {
		if (uid == "" || s.UID == uid) && (status == "" || s.Status == status) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

// fakeCashOutRepo 内存实现
type fakeCashOutRepo struct {
	cashOuts map[string]*CashOut
	refunds  map[string]int
}

func newFakeCashOutRepo(cashOuts ...*CashOut) *fakeCashOutRepo {
	r := &fakeCashOutRepo{
		cashOuts: make(map[string]*CashOut),
		refunds:  make(map[string]int),
	}
	for _, c := range cashOuts {
		r.cashOuts[c.CashOutID] = c
	}
	return r
}

func (r *fakeCashOutRepo) CreateCashOut(ctx context.Context, c *CashOut) error {
	if c.CashOutID == "" {
		c.CashOutID = fmt.Sprintf("co-%d", len(r.cashOuts)+1)
	}
	r.cashOuts[c.CashOutID] = c
	return nil
}

func (r *fakeCashOutRepo) GetCashOut(ctx context.Context, cashOutID string) (*CashOut, error) {
	c, ok := r.cashOuts[cashOutID]
	if !ok {
		return nil, juiceErrors.ErrCashOutNotFound(cashOutID)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCashOutRepo) ListDueCashOutIDs(ctx context.Context, now time.Time, maxRetries, limit int) ([]string, error) {
	var ids []string
	for id, c := range r.cashOuts {
		if c.Status == constants.CashOutStatusPending && !c.AvailableAt.After(now) && c.RetryCount < maxRetries {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeCashOutRepo) ClaimCashOut(ctx context.Context, cashOutID string, maxRetries int) (*CashOut, bool, error) {
	c, ok := r.cashOuts[cashOutID]
	if !ok || c.Status != constants.CashOutStatusPending || c.AvailableAt.After(time.Now()) || c.RetryCount >= maxRetries {
		return nil, false, nil
	}
	c.Status = constants.CashOutStatusProcessing
	copied := *c
	return &copied, true, nil
}

func (r *fakeCashOutRepo) ClaimCashOutBlocking(ctx context.Context, cashOutID string) (*CashOut, error) {
	c, ok := r.cashOuts[cashOutID]
	if !ok {
		return nil, juiceErrors.ErrCashOutNotFound(cashOutID)
	}
	switch c.Status {
	case constants.CashOutStatusCompleted, constants.CashOutStatusFailed, constants.CashOutStatusCancelled:
		return nil, juiceErrors.ErrInvalidCashOutState(cashOutID, c.Status)
	}
	c.Status = constants.CashOutStatusProcessing
	copied := *c
	return &copied, nil
}

func (r *fakeCashOutRepo) CompleteCashOut(ctx context.Context, cashOutID string, res *SettlementResult) error {
	c := r.cashOuts[cashOutID]
	c.Status = constants.CashOutStatusCompleted
	c.TxHash = res.TxHash
	c.CryptoAmount = res.CryptoAmount
	c.Rate = res.Rate
	return nil
}

func (r *fakeCashOutRepo) RetryCashOut(ctx context.Context, cashOutID, errMsg string) error {
	c := r.cashOuts[cashOutID]
	c.Status = constants.CashOutStatusPending
	c.RetryCount++
	c.ErrorMessage = errMsg
	return nil
}

func (r *fakeCashOutRepo) FailCashOutAndRefund(ctx context.Context, cashOutID, errMsg string) error {
	c := r.cashOuts[cashOutID]
	if c.Status != constants.CashOutStatusProcessing {
		return fmt.Errorf("fail-and-refund target not in processing state: %s", cashOutID)
	}
	c.Status = constants.CashOutStatusFailed
	c.ErrorMessage = errMsg
	r.refunds[cashOutID]++
	return nil
}

func (r *fakeCashOutRepo) CancelCashOut(ctx context.Context, cashOutID, uid string) error {
	c, ok := r.cashOuts[cashOutID]
	if !ok || c.UID != uid {
		return juiceErrors.ErrCashOutNotFound(cashOutID)
	}
	if c.Status != constants.CashOutStatusPending {
		return juiceErrors.ErrInvalidCashOutState(cashOutID, c.Status)
	}
	c.Status = constants.CashOutStatusCancelled
	r.refunds[cashOutID]++
	return nil
}

func (r *fakeCashOutRepo) ListCashOuts(ctx context.Context, uid, status string, page, pageSize int) ([]*CashOut, int64, error) {
	var out []*CashOut
	for _, c := range r.cashOuts {
		if (uid == "" || c.UID == uid) && (status == "" || c.Status == status) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

// fakeChainClient 可注入失败的链客户端
type fakeChainClient struct {
	submitErr      error
	confirmErr     error
	submits        int
	lastAmount     decimal.Decimal
	tokensReceived decimal.Decimal
}

func (c *fakeChainClient) SubmitTransfer(ctx context.Context, req *TransferRequest) (string, error) {
	c.submits++
	c.lastAmount = req.Amount
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return fmt.Sprintf("0xabc%d", c.submits), nil
}

func (c *fakeChainClient) WaitForConfirmation(ctx context.Context, txHash string) (*TransferReceipt, error) {
	if c.confirmErr != nil {
		return nil, c.confirmErr
	}
	return &TransferReceipt{
		TxHash:         txHash,
		BlockNumber:    100,
		TokensReceived: c.tokensReceived,
	}, nil
}

// fakePriceFeed 固定报价的价格源
type fakePriceFeed struct {
	quote *Quote
	err   error
}

func (p *fakePriceFeed) GetConversionRate(ctx context.Context) (*Quote, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.quote, nil
}

func freshQuote(rate string) *Quote {
	return &Quote{
		Rate: decimal.RequireFromString(rate),
		AsOf: time.Now(),
	}
}

func pendingSpend(id string) *Spend {
	return &Spend{
		SpendID:            id,
		UID:                "user-1",
		ProjectID:          42,
		ChainID:            8453,
		BeneficiaryAddress: "0xbeneficiary",
		JuiceAmount:        decimal.RequireFromString("100.00"),
		Status:             constants.SpendStatusPending,
	}
}

func newSettlementUseCase(spendRepo SpendRepo, cashOutRepo CashOutRepo, client ChainClient, feed PriceFeed, conf *JuiceConfig) *SettlementUseCase {
	clients := map[int64]ChainClient{}
	if client != nil {
		clients[conf.DefaultChainID] = client
	}
	registry := NewChainRegistry(conf.DefaultChainID, clients)
	return NewSettlementUseCase(spendRepo, cashOutRepo, registry, feed, conf, testLogger())
}

func TestProcessPendingSpendsSettlesAndConverts(t *testing.T) {
	repo := newFakeSpendRepo(pendingSpend("sp-1"))
	client := &fakeChainClient{tokensReceived: decimal.RequireFromString("123.456")}
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), client, feed, testConfig())

	result, err := uc.ProcessPendingSpends(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessPendingSpends returned error: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	s := repo.spends["sp-1"]
	if s.Status != constants.SpendStatusCompleted {
		t.Fatalf("status = %s, want completed", s.Status)
	}
	// 100.00 juice / 4.00 = 25 结算资产
	want := decimal.RequireFromString("25")
	if !s.CryptoAmount.Equal(want) {
		t.Fatalf("crypto amount = %s, want %s", s.CryptoAmount, want)
	}
	if !s.TokensReceived.Equal(decimal.RequireFromString("123.456")) {
		t.Fatalf("tokens received = %s", s.TokensReceived)
	}
	if s.TxHash == "" {
		t.Fatal("tx hash not recorded")
	}
}

func TestProcessPendingSpendsRetriesOnTransferFailure(t *testing.T) {
	repo := newFakeSpendRepo(pendingSpend("sp-1"))
	client := &fakeChainClient{submitErr: fmt.Errorf("rpc unavailable")}
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), client, feed, testConfig())

	result, err := uc.ProcessPendingSpends(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessPendingSpends returned error: %v", err)
	}
	if result.StillPending != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	s := repo.spends["sp-1"]
	if s.Status != constants.SpendStatusPending {
		t.Fatalf("status = %s, want pending", s.Status)
	}
	if s.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", s.RetryCount)
	}
	if s.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}
	if repo.refunds["sp-1"] != 0 {
		t.Fatal("refund must not happen before retries are exhausted")
	}
}

func TestProcessPendingSpendsRefundsExactlyOnceAtMaxRetries(t *testing.T) {
	conf := testConfig() // MaxRetries = 3
	spend := pendingSpend("sp-1")
	repo := newFakeSpendRepo(spend)
	client := &fakeChainClient{submitErr: fmt.Errorf("rpc unavailable")}
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), client, feed, conf)

	// 逐轮跑到重试耗尽
	for i := 0; i < conf.MaxRetries; i++ {
		if _, err := uc.ProcessPendingSpends(context.Background(), 0); err != nil {
			t.Fatalf("round %d returned error: %v", i, err)
		}
	}

	if spend.Status != constants.SpendStatusFailed {
		t.Fatalf("status = %s, want failed", spend.Status)
	}
	if repo.refunds["sp-1"] != 1 {
		t.Fatalf("refund count = %d, want exactly 1", repo.refunds["sp-1"])
	}

	// 终态后的额外轮次不再碰这条记录
	result, err := uc.ProcessPendingSpends(context.Background(), 0)
	if err != nil {
		t.Fatalf("extra round returned error: %v", err)
	}
	if result.Succeeded != 0 || result.Failed != 0 || result.StillPending != 0 {
		t.Fatalf("failed record was picked up again: %+v", result)
	}
	if repo.refunds["sp-1"] != 1 {
		t.Fatalf("refund count after extra round = %d, want 1", repo.refunds["sp-1"])
	}
}

func TestProcessPendingSpendsZeroProgressWithoutDefaultChain(t *testing.T) {
	repo := newFakeSpendRepo(pendingSpend("sp-1"))
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), nil, feed, testConfig())

	result, err := uc.ProcessPendingSpends(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessPendingSpends returned error: %v", err)
	}
	if result.Succeeded != 0 || result.Failed != 0 || result.StillPending != 0 {
		t.Fatalf("expected zero-progress result, got %+v", result)
	}
	if repo.spends["sp-1"].Status != constants.SpendStatusPending {
		t.Fatal("record must stay pending when no chain client is configured")
	}
}

func TestProcessPendingSpendsStaleQuoteGoesToRetry(t *testing.T) {
	repo := newFakeSpendRepo(pendingSpend("sp-1"))
	client := &fakeChainClient{}
	feed := &fakePriceFeed{quote: &Quote{
		Rate: decimal.RequireFromString("4.00"),
		AsOf: time.Now().Add(-time.Hour),
	}}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), client, feed, testConfig())

	if _, err := uc.ProcessPendingSpends(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPendingSpends returned error: %v", err)
	}

	s := repo.spends["sp-1"]
	if s.Status != constants.SpendStatusPending || s.RetryCount != 1 {
		t.Fatalf("stale quote should cause retry, got status=%s retry=%d", s.Status, s.RetryCount)
	}
	if client.submits != 0 {
		t.Fatal("no transfer must be submitted on a stale quote")
	}
}

func TestProcessSingleSpendRejectsSettledRecord(t *testing.T) {
	spend := pendingSpend("sp-1")
	spend.Status = constants.SpendStatusCompleted
	repo := newFakeSpendRepo(spend)
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), &fakeChainClient{}, feed, testConfig())

	err := uc.ProcessSingleSpend(context.Background(), "sp-1")
	if !juiceErrors.IsSpendAlreadySettled(err) {
		t.Fatalf("expected SpendAlreadySettled, got %v", err)
	}
}

func TestProcessSingleSpendSettlesPendingRecord(t *testing.T) {
	repo := newFakeSpendRepo(pendingSpend("sp-1"))
	client := &fakeChainClient{tokensReceived: decimal.RequireFromString("10")}
	feed := &fakePriceFeed{quote: freshQuote("2.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), client, feed, testConfig())

	if err := uc.ProcessSingleSpend(context.Background(), "sp-1"); err != nil {
		t.Fatalf("ProcessSingleSpend returned error: %v", err)
	}
	if repo.spends["sp-1"].Status != constants.SpendStatusCompleted {
		t.Fatalf("status = %s, want completed", repo.spends["sp-1"].Status)
	}
}

func TestProcessSingleSpendChainNotConfiguredKeepsRetryCount(t *testing.T) {
	spend := pendingSpend("sp-1")
	spend.ChainID = 999 // 未配置客户端的链
	repo := newFakeSpendRepo(spend)
	feed := &fakePriceFeed{quote: freshQuote("4.00")}
	uc := newSettlementUseCase(repo, newFakeCashOutRepo(), &fakeChainClient{}, feed, testConfig())

	err := uc.ProcessSingleSpend(context.Background(), "sp-1")
	if !juiceErrors.IsChainNotConfigured(err) {
		t.Fatalf("expected ChainNotConfigured, got %v", err)
	}
	if spend.Status != constants.SpendStatusPending {
		t.Fatalf("status = %s, want pending", spend.Status)
	}
	if spend.RetryCount != 0 {
		t.Fatalf("retry count = %d, a configuration problem must not consume retries", spend.RetryCount)
	}
}

func TestProcessSingleCashOutRevivesStrandedRecord(t *testing.T) {
	stranded := &CashOut{
		CashOutID:          "co-1",
		UID:                "user-1",
		ChainID:            8453,
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
		Status:             constants.CashOutStatusProcessing, // worker 崩溃后停留在执行中
		AvailableAt:        time.Now().Add(-time.Hour),
	}
	repo := newFakeCashOutRepo(stranded)
	client := &fakeChainClient{}
	feed := &fakePriceFeed{quote: freshQuote("2.00")}
	uc := newSettlementUseCase(newFakeSpendRepo(), repo, client, feed, testConfig())

	if err := uc.ProcessSingleCashOut(context.Background(), "co-1"); err != nil {
		t.Fatalf("ProcessSingleCashOut returned error: %v", err)
	}
	if stranded.Status != constants.CashOutStatusCompleted {
		t.Fatalf("status = %s, want completed", stranded.Status)
	}
	if !stranded.CryptoAmount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("crypto amount = %s, want 25", stranded.CryptoAmount)
	}
}

func TestProcessSingleCashOutRejectsTerminalRecord(t *testing.T) {
	done := &CashOut{
		CashOutID:          "co-1",
		UID:                "user-1",
		ChainID:            8453,
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
		Status:             constants.CashOutStatusCompleted,
	}
	repo := newFakeCashOutRepo(done)
	feed := &fakePriceFeed{quote: freshQuote("2.00")}
	uc := newSettlementUseCase(newFakeSpendRepo(), repo, &fakeChainClient{}, feed, testConfig())

	err := uc.ProcessSingleCashOut(context.Background(), "co-1")
	if !juiceErrors.IsInvalidCashOutState(err) {
		t.Fatalf("expected InvalidCashOutState, got %v", err)
	}
}

func TestProcessPendingCashOutsHonorsHoldPeriod(t *testing.T) {
	held := &CashOut{
		CashOutID:          "co-held",
		UID:                "user-1",
		ChainID:            8453,
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
		Status:             constants.CashOutStatusPending,
		AvailableAt:        time.Now().Add(time.Hour),
	}
	due := &CashOut{
		CashOutID:          "co-due",
		UID:                "user-1",
		ChainID:            8453,
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
		Status:             constants.CashOutStatusPending,
		AvailableAt:        time.Now().Add(-time.Minute),
	}
	repo := newFakeCashOutRepo(held, due)
	client := &fakeChainClient{}
	feed := &fakePriceFeed{quote: freshQuote("2.00")}
	uc := newSettlementUseCase(newFakeSpendRepo(), repo, client, feed, testConfig())

	result, err := uc.ProcessPendingCashOuts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessPendingCashOuts returned error: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if held.Status != constants.CashOutStatusPending {
		t.Fatal("record inside hold period must not be settled")
	}
	if due.Status != constants.CashOutStatusCompleted {
		t.Fatalf("due record status = %s, want completed", due.Status)
	}
	if !due.CryptoAmount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("crypto amount = %s, want 25", due.CryptoAmount)
	}
}

func TestProcessPendingCashOutsRefundsExactlyOnceAtMaxRetries(t *testing.T) {
	conf := testConfig()
	cashOut := &CashOut{
		CashOutID:          "co-1",
		UID:                "user-1",
		ChainID:            8453,
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
		Status:             constants.CashOutStatusPending,
		AvailableAt:        time.Now().Add(-time.Minute),
	}
	repo := newFakeCashOutRepo(cashOut)
	client := &fakeChainClient{confirmErr: fmt.Errorf("confirmation timed out")}
	feed := &fakePriceFeed{quote: freshQuote("2.00")}
	uc := newSettlementUseCase(newFakeSpendRepo(), repo, client, feed, conf)

	for i := 0; i < conf.MaxRetries; i++ {
		if _, err := uc.ProcessPendingCashOuts(context.Background(), 0); err != nil {
			t.Fatalf("round %d returned error: %v", i, err)
		}
	}

	if cashOut.Status != constants.CashOutStatusFailed {
		t.Fatalf("status = %s, want failed", cashOut.Status)
	}
	if repo.refunds["co-1"] != 1 {
		t.Fatalf("refund count = %d, want exactly 1", repo.refunds["co-1"])
	}
}
