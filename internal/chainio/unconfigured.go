package chainio

import (
	"context"
	"errors"

	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

// ErrChainAdapterUnconfigured is returned by every Unconfigured method.
// LiquidCore deliberately does not implement chain connectivity, oracle
// pricing, or comptroller parameters (§1 non-goals) — those are external
// collaborators supplied by the deployment. Unconfigured is the zero-value
// placeholder cmd/liquidator starts with so the process can come up and
// serve /healthz before a real ChainReader, MarketRegistry, and PriceLedger
// are wired in.
var ErrChainAdapterUnconfigured = errors.New("chainio: no chain adapter configured")

// Unconfigured implements ChainReader, MarketRegistry, and PriceLedger by
// always failing with ErrChainAdapterUnconfigured.
type Unconfigured struct{}

func (Unconfigured) GetBlockNumber(ctx context.Context) (uint64, error) {
	return 0, ErrChainAdapterUnconfigured
}

func (Unconfigured) GetBorrowIndex(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) GetExchangeRateStored(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) GetAccountSnapshot(ctx context.Context, market domain.MarketId, addr domain.Address, atBlock uint64) (AccountSnapshot, error) {
	return AccountSnapshot{}, ErrChainAdapterUnconfigured
}

func (Unconfigured) CollateralFactor(market domain.MarketId) (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) CloseFactor() (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) LiquidationIncentive() (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) IsCollateral(addr domain.Address, market domain.MarketId) (bool, error) {
	return false, ErrChainAdapterUnconfigured
}

func (Unconfigured) Markets() []domain.MarketId { return nil }

func (Unconfigured) Symbol(market domain.MarketId) (string, error) {
	return "", ErrChainAdapterUnconfigured
}

func (Unconfigured) Price(market domain.MarketId) (fixedpoint.F, error) {
	return fixedpoint.Zero, ErrChainAdapterUnconfigured
}

func (Unconfigured) GetPostableFormat(symbols []string, edges []PriceEdge) (*PostableAttestations, error) {
	return nil, ErrChainAdapterUnconfigured
}
