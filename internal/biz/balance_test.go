package biz

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeBalanceRepo 内存实现
type fakeBalanceRepo struct {
	balances map[string]*Balance
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{balances: make(map[string]*Balance)}
}

func (r *fakeBalanceRepo) GetOrCreateBalance(ctx context.Context, uid string) (*Balance, error) {
	if b, ok := r.balances[uid]; ok {
		copied := *b
		return &copied, nil
	}
	b := &Balance{
		UID:               uid,
		Balance:           decimal.Zero,
		LifetimePurchased: decimal.Zero,
		LifetimeSpent:     decimal.Zero,
		LifetimeCashedOut: decimal.Zero,
		LastActivityAt:    time.Now(),
	}
	r.balances[uid] = b
	copied := *b
	return &copied, nil
}

func (r *fakeBalanceRepo) GetBalance(ctx context.Context, uid string) (*Balance, error) {
	b, ok := r.balances[uid]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (r *fakeBalanceRepo) Credit(ctx context.Context, uid string, amount decimal.Decimal, purchaseID string) error {
	b, ok := r.balances[uid]
	if !ok {
		b = &Balance{UID: uid, Balance: decimal.Zero, LifetimePurchased: decimal.Zero}
		r.balances[uid] = b
	}
	b.Balance = b.Balance.Add(amount)
	b.LifetimePurchased = b.LifetimePurchased.Add(amount)
	b.LastActivityAt = time.Now()
	return nil
}

func TestGetBalanceReturnsZeroForUnknownUser(t *testing.T) {
	uc := NewBalanceUseCase(newFakeBalanceRepo(), testLogger())

	b, err := uc.GetBalance(context.Background(), "user-unknown")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if b == nil {
		t.Fatal("expected a zero-balance object, got nil")
	}
	if !b.Balance.Equal(decimal.Zero) {
		t.Fatalf("balance = %s, want 0", b.Balance)
	}
	if b.UID != "user-unknown" {
		t.Fatalf("uid = %s", b.UID)
	}
}

func TestGetBalanceReturnsExistingBalance(t *testing.T) {
	repo := newFakeBalanceRepo()
	repo.balances["user-1"] = &Balance{
		UID:               "user-1",
		Balance:           decimal.RequireFromString("42.50"),
		LifetimePurchased: decimal.RequireFromString("100.00"),
		LifetimeSpent:     decimal.RequireFromString("57.50"),
		LifetimeCashedOut: decimal.Zero,
	}
	uc := NewBalanceUseCase(repo, testLogger())

	b, err := uc.GetBalance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if !b.Balance.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("balance = %s, want 42.50", b.Balance)
	}
	// 不变式：balance = purchased - spent - cashed_out
	derived := b.LifetimePurchased.Sub(b.LifetimeSpent).Sub(b.LifetimeCashedOut)
	if !b.Balance.Equal(derived) {
		t.Fatalf("ledger invariant broken: balance=%s derived=%s", b.Balance, derived)
	}
}
