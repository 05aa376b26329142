package biz

import (
	"context"
	"testing"
	"time"

	"juice-service/internal/constants"
	juiceErrors "juice-service/internal/errors"

	"github.com/shopspring/decimal"
)

func TestInitiateCashOutSetsHoldPeriod(t *testing.T) {
	repo := newFakeCashOutRepo()
	conf := testConfig()
	uc := NewCashOutUseCase(repo, conf, testLogger())

	before := time.Now()
	cashOutID, err := uc.InitiateCashOut(context.Background(), &InitiateCashOutParams{
		UID:                "user-1",
		DestinationAddress: "0xdest",
		JuiceAmount:        decimal.RequireFromString("50.00"),
	})
	if err != nil {
		t.Fatalf("InitiateCashOut returned error: %v", err)
	}

	c := repo.cashOuts[cashOutID]
	if c == nil {
		t.Fatal("cash out not created")
	}
	if c.Status != constants.CashOutStatusPending {
		t.Fatalf("status = %s, want pending", c.Status)
	}
	if c.ChainID != conf.DefaultChainID {
		t.Fatalf("chain_id = %d, want default %d", c.ChainID, conf.DefaultChainID)
	}
	wantEarliest := before.Add(conf.CashOutHoldDelay)
	if c.AvailableAt.Before(wantEarliest.Add(-time.Second)) {
		t.Fatalf("available_at = %s, want around %s", c.AvailableAt, wantEarliest)
	}
}

func TestCancelCashOutOnlyPending(t *testing.T) {
	processing := &CashOut{
		CashOutID:   "co-proc",
		UID:         "user-1",
		JuiceAmount: decimal.RequireFromString("50.00"),
		Status:      constants.CashOutStatusProcessing,
		AvailableAt: time.Now().Add(-time.Minute),
	}
	repo := newFakeCashOutRepo(processing)
	uc := NewCashOutUseCase(repo, testConfig(), testLogger())

	err := uc.CancelCashOut(context.Background(), "co-proc", "user-1")
	if !juiceErrors.IsInvalidCashOutState(err) {
		t.Fatalf("expected InvalidCashOutState, got %v", err)
	}
	if repo.refunds["co-proc"] != 0 {
		t.Fatal("no refund must happen for a non-pending cash out")
	}
}

func TestCancelCashOutRefundsPending(t *testing.T) {
	pending := &CashOut{
		CashOutID:   "co-1",
		UID:         "user-1",
		JuiceAmount: decimal.RequireFromString("50.00"),
		Status:      constants.CashOutStatusPending,
		AvailableAt: time.Now().Add(time.Hour),
	}
	repo := newFakeCashOutRepo(pending)
	uc := NewCashOutUseCase(repo, testConfig(), testLogger())

	if err := uc.CancelCashOut(context.Background(), "co-1", "user-1"); err != nil {
		t.Fatalf("CancelCashOut returned error: %v", err)
	}
	if pending.Status != constants.CashOutStatusCancelled {
		t.Fatalf("status = %s, want cancelled", pending.Status)
	}
	if repo.refunds["co-1"] != 1 {
		t.Fatalf("refund count = %d, want 1", repo.refunds["co-1"])
	}
}

func TestCancelCashOutRejectsOtherUser(t *testing.T) {
	pending := &CashOut{
		CashOutID:   "co-1",
		UID:         "user-1",
		JuiceAmount: decimal.RequireFromString("50.00"),
		Status:      constants.CashOutStatusPending,
		AvailableAt: time.Now().Add(time.Hour),
	}
	repo := newFakeCashOutRepo(pending)
	uc := NewCashOutUseCase(repo, testConfig(), testLogger())

	err := uc.CancelCashOut(context.Background(), "co-1", "user-2")
	if !juiceErrors.IsCashOutNotFound(err) {
		t.Fatalf("expected CashOutNotFound for another user's record, got %v", err)
	}
}
