package biz

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeExpirationRepo 内存实现
type fakeExpirationRepo struct {
	balances map[string]*Balance // 余额为正且可能过期的用户
	active   map[string]bool     // 查询后又发生活动的用户
	expired  []*ExpiredBalance
}

func newFakeExpirationRepo() *fakeExpirationRepo {
	return &fakeExpirationRepo{
		balances: make(map[string]*Balance),
		active:   make(map[string]bool),
	}
}

func (r *fakeExpirationRepo) ListExpiredUIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var uids []string
	for uid, b := range r.balances {
		if b.Balance.IsPositive() && b.LastActivityAt.Before(cutoff) {
			uids = append(uids, uid)
		}
		if len(uids) >= limit {
			break
		}
	}
	return uids, nil
}

func (r *fakeExpirationRepo) ExpireBalance(ctx context.Context, uid string, cutoff time.Time) (*ExpiredBalance, error) {
	if r.active[uid] {
		return nil, nil
	}
	b := r.balances[uid]
	e := &ExpiredBalance{
		UID:            uid,
		Amount:         b.Balance,
		LastActivityAt: b.LastActivityAt,
	}
	b.Balance = decimal.Zero
	r.expired = append(r.expired, e)
	return e, nil
}

func TestExpireInactiveBalances(t *testing.T) {
	repo := newFakeExpirationRepo()
	conf := testConfig() // RetentionWindow = 180d

	repo.balances["user-stale"] = &Balance{
		UID:            "user-stale",
		Balance:        decimal.RequireFromString("30.00"),
		LastActivityAt: time.Now().Add(-200 * 24 * time.Hour),
	}
	repo.balances["user-fresh"] = &Balance{
		UID:            "user-fresh",
		Balance:        decimal.RequireFromString("10.00"),
		LastActivityAt: time.Now().Add(-time.Hour),
	}

	uc := NewExpirationUseCase(repo, conf, testLogger())
	result, err := uc.ExpireInactiveBalances(context.Background(), 0)
	if err != nil {
		t.Fatalf("ExpireInactiveBalances returned error: %v", err)
	}

	if result.Expired != 1 {
		t.Fatalf("expired = %d, want 1", result.Expired)
	}
	if !result.TotalAmount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("total amount = %s, want 30.00", result.TotalAmount)
	}
	if !repo.balances["user-stale"].Balance.Equal(decimal.Zero) {
		t.Fatal("stale balance not zeroed")
	}
	if !repo.balances["user-fresh"].Balance.Equal(decimal.RequireFromString("10.00")) {
		t.Fatal("fresh balance must be untouched")
	}
}

func TestExpireInactiveBalancesSkipsRecentlyActive(t *testing.T) {
	repo := newFakeExpirationRepo()
	repo.balances["user-1"] = &Balance{
		UID:            "user-1",
		Balance:        decimal.RequireFromString("30.00"),
		LastActivityAt: time.Now().Add(-200 * 24 * time.Hour),
	}
	// 在扫描与认领之间发生了活动
	repo.active["user-1"] = true

	uc := NewExpirationUseCase(repo, testConfig(), testLogger())
	result, err := uc.ExpireInactiveBalances(context.Background(), 0)
	if err != nil {
		t.Fatalf("ExpireInactiveBalances returned error: %v", err)
	}
	if result.Expired != 0 {
		t.Fatalf("expired = %d, want 0", result.Expired)
	}
	if len(repo.expired) != 0 {
		t.Fatal("no audit record must be written for a skipped balance")
	}
}
