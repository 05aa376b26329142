package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewJuiceConfig,
	NewBalanceUseCase,
	NewPurchaseUseCase,
	NewSpendUseCase,
	NewCashOutUseCase,
	NewSettlementUseCase,
	NewExpirationUseCase,
	NewStatsUseCase,
)
