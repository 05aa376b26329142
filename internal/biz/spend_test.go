package biz

import (
	"context"
	"testing"

	"juice-service/internal/constants"
	juiceErrors "juice-service/internal/errors"

	"github.com/shopspring/decimal"
)

// insufficientSpendRepo 扣款总是余额不足
type insufficientSpendRepo struct {
	fakeSpendRepo
}

func (r *insufficientSpendRepo) CreateSpend(ctx context.Context, s *Spend) error {
	return juiceErrors.ErrInsufficientBalance(s.UID)
}

func TestSpendJuiceFillsDefaultChain(t *testing.T) {
	repo := newFakeSpendRepo()
	uc := NewSpendUseCase(repo, testConfig(), testLogger())

	spendID, err := uc.SpendJuice(context.Background(), &SpendJuiceParams{
		UID:                "user-1",
		ProjectID:          42,
		BeneficiaryAddress: "0xbeneficiary",
		JuiceAmount:        decimal.RequireFromString("10.00"),
	})
	if err != nil {
		t.Fatalf("SpendJuice returned error: %v", err)
	}

	s := repo.spends[spendID]
	if s == nil {
		t.Fatal("spend not created")
	}
	if s.ChainID != testConfig().DefaultChainID {
		t.Fatalf("chain_id = %d, want default %d", s.ChainID, testConfig().DefaultChainID)
	}
	if s.Status != constants.SpendStatusPending {
		t.Fatalf("status = %s, want pending", s.Status)
	}
}

func TestSpendJuiceKeepsExplicitChain(t *testing.T) {
	repo := newFakeSpendRepo()
	uc := NewSpendUseCase(repo, testConfig(), testLogger())

	spendID, err := uc.SpendJuice(context.Background(), &SpendJuiceParams{
		UID:                "user-1",
		ProjectID:          42,
		ChainID:            1,
		BeneficiaryAddress: "0xbeneficiary",
		JuiceAmount:        decimal.RequireFromString("10.00"),
	})
	if err != nil {
		t.Fatalf("SpendJuice returned error: %v", err)
	}
	if repo.spends[spendID].ChainID != 1 {
		t.Fatalf("chain_id = %d, want 1", repo.spends[spendID].ChainID)
	}
}

func TestSpendJuicePropagatesInsufficientBalance(t *testing.T) {
	repo := &insufficientSpendRepo{fakeSpendRepo: *newFakeSpendRepo()}
	uc := NewSpendUseCase(repo, testConfig(), testLogger())

	_, err := uc.SpendJuice(context.Background(), &SpendJuiceParams{
		UID:                "user-poor",
		ProjectID:          42,
		BeneficiaryAddress: "0xbeneficiary",
		JuiceAmount:        decimal.RequireFromString("10.00"),
	})
	if !juiceErrors.IsInsufficientBalance(err) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if len(repo.spends) != 0 {
		t.Fatal("no spend record must exist after a failed debit")
	}
}
