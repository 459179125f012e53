package health

import (
	"LiquidCore/internal/chainio"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

// LiquidationCandidate carries enough context for a downstream executor to
// submit a liquidation transaction: which debt market to repay, which
// collateral market to seize, the price attestations that must accompany
// the call, and the expected profit in ETH terms.
type LiquidationCandidate struct {
	Address            domain.Address
	RepayMarket        domain.MarketId
	SeizeMarket        domain.MarketId
	PricesToReport     chainio.PostableAttestations
	ExpectedRevenueEth fixedpoint.F
}
