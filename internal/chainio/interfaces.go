// Package chainio declares the external collaborators the core reads from:
// ChainReader for on-demand storage reads, EventSource for the decoded log
// stream, MarketRegistry for comptroller-wide parameters, and PriceLedger
// for oracle prices and postable attestations. LiquidCore never implements
// chain connectivity itself (§1: deliberately out of scope) — production
// wiring supplies concrete implementations (see internal/ingestion for the
// NATS-backed EventSource); tests supply fakes.
package chainio

import (
	"context"

	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/marketevent"
)

// AccountSnapshot is the on-demand read used during hydration and
// verification: a single market's view of one account's position.
type AccountSnapshot struct {
	SuppliedCTokens fixedpoint.F
	BorrowBalance   fixedpoint.F
	BorrowIndex     fixedpoint.F
}

// ChainReader is the on-demand storage-read collaborator (§6).
type ChainReader interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBorrowIndex(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error)
	GetExchangeRateStored(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error)
	GetAccountSnapshot(ctx context.Context, market domain.MarketId, addr domain.Address, atBlock uint64) (AccountSnapshot, error)
}

// EventSource delivers a stream of decoded market events (§6). Events is
// expected to run until ctx is cancelled or a permanent error occurs;
// implementations decide their own reconnect policy (§9 open question) —
// internal/registry wraps whatever EventSource is supplied with a
// reconnect-with-backoff loop, per the default the spec calls for.
type EventSource interface {
	Events(ctx context.Context) (<-chan marketevent.Event, <-chan error)
}

// PriceEdge names a price bound the on-chain liquidation entry point
// requires to be attested alongside a symbol, e.g. a max staleness or a
// min/max bound the caller commits to.
type PriceEdge struct {
	Symbol string
	Min    fixedpoint.F
	Max    fixedpoint.F
}

// PostableAttestations is the opaque, oracle-produced bundle a downstream
// executor attaches to its liquidation transaction.
type PostableAttestations struct {
	Blob []byte
}

// MarketRegistry supplies comptroller-wide parameters (§6).
type MarketRegistry interface {
	CollateralFactor(market domain.MarketId) (fixedpoint.F, error)
	CloseFactor() (fixedpoint.F, error)
	LiquidationIncentive() (fixedpoint.F, error)
	IsCollateral(addr domain.Address, market domain.MarketId) (bool, error)
	Markets() []domain.MarketId
	Symbol(market domain.MarketId) (string, error)
}

// PriceLedger supplies oracle prices and postable attestation bundles (§6).
type PriceLedger interface {
	Price(market domain.MarketId) (fixedpoint.F, error)
	GetPostableFormat(symbols []string, edges []PriceEdge) (*PostableAttestations, error)
}
