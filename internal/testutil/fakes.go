// Package testutil holds shared fixtures for LiquidCore's unit tests: fake
// ChainReader, MarketRegistry, and PriceLedger implementations, and a fake
// Store satisfying internal/apply.Store, following the teacher's convention
// of a dedicated testutil package rather than duplicating fixtures across
// _test.go files.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"LiquidCore/internal/borrower"
	"LiquidCore/internal/chainio"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

// FakeChainReader is an in-memory ChainReader for tests. Reads are keyed by
// market/address only — atBlock is accepted but ignored, since tests only
// ever need "the current value."
type FakeChainReader struct {
	mu            sync.Mutex
	BlockNumber   uint64
	BorrowIndexes map[domain.MarketId]fixedpoint.F
	ExchangeRates map[domain.MarketId]fixedpoint.F
	Snapshots     map[domain.Address]map[domain.MarketId]chainio.AccountSnapshot
	FailNext      error
}

// NewFakeChainReader returns an empty fake at block 1.
func NewFakeChainReader() *FakeChainReader {
	return &FakeChainReader{
		BlockNumber:   1,
		BorrowIndexes: make(map[domain.MarketId]fixedpoint.F),
		ExchangeRates: make(map[domain.MarketId]fixedpoint.F),
		Snapshots:     make(map[domain.Address]map[domain.MarketId]chainio.AccountSnapshot),
	}
}

func (f *FakeChainReader) GetBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return 0, err
	}
	return f.BlockNumber, nil
}

func (f *FakeChainReader) GetBorrowIndex(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.BorrowIndexes[market]
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("testutil: no borrow index for %s", market)
	}
	return v, nil
}

func (f *FakeChainReader) GetExchangeRateStored(ctx context.Context, market domain.MarketId, atBlock uint64) (fixedpoint.F, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.ExchangeRates[market]
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("testutil: no exchange rate for %s", market)
	}
	return v, nil
}

func (f *FakeChainReader) GetAccountSnapshot(ctx context.Context, market domain.MarketId, addr domain.Address, atBlock uint64) (chainio.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byMarket, ok := f.Snapshots[addr]
	if !ok {
		return chainio.AccountSnapshot{}, nil
	}
	snap, ok := byMarket[market]
	if !ok {
		return chainio.AccountSnapshot{}, nil
	}
	return snap, nil
}

// FakeMarketRegistry is a static in-memory MarketRegistry.
type FakeMarketRegistry struct {
	CollateralFactors     map[domain.MarketId]fixedpoint.F
	Symbols               map[domain.MarketId]string
	CloseFactorValue      fixedpoint.F
	LiquidationIncentive_ fixedpoint.F
	Collateral            map[domain.Address]map[domain.MarketId]bool
	MarketList            []domain.MarketId
}

// NewFakeMarketRegistry returns a registry with the given close factor and
// liquidation incentive; per-market data is added with the setters.
func NewFakeMarketRegistry(closeFactor, liqIncentive fixedpoint.F) *FakeMarketRegistry {
	return &FakeMarketRegistry{
		CollateralFactors:     make(map[domain.MarketId]fixedpoint.F),
		Symbols:               make(map[domain.MarketId]string),
		CloseFactorValue:      closeFactor,
		LiquidationIncentive_: liqIncentive,
		Collateral:            make(map[domain.Address]map[domain.MarketId]bool),
	}
}

func (r *FakeMarketRegistry) WithMarket(m domain.MarketId, symbol string, collateralFactor fixedpoint.F) *FakeMarketRegistry {
	r.MarketList = append(r.MarketList, m)
	r.Symbols[m] = symbol
	r.CollateralFactors[m] = collateralFactor
	return r
}

func (r *FakeMarketRegistry) SetCollateral(addr domain.Address, m domain.MarketId, isCollateral bool) {
	byMarket, ok := r.Collateral[addr]
	if !ok {
		byMarket = make(map[domain.MarketId]bool)
		r.Collateral[addr] = byMarket
	}
	byMarket[m] = isCollateral
}

func (r *FakeMarketRegistry) CollateralFactor(m domain.MarketId) (fixedpoint.F, error) {
	v, ok := r.CollateralFactors[m]
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("testutil: no collateral factor for %s", m)
	}
	return v, nil
}

func (r *FakeMarketRegistry) CloseFactor() (fixedpoint.F, error) { return r.CloseFactorValue, nil }

func (r *FakeMarketRegistry) LiquidationIncentive() (fixedpoint.F, error) {
	return r.LiquidationIncentive_, nil
}

func (r *FakeMarketRegistry) IsCollateral(addr domain.Address, m domain.MarketId) (bool, error) {
	byMarket, ok := r.Collateral[addr]
	if !ok {
		return false, nil
	}
	return byMarket[m], nil
}

func (r *FakeMarketRegistry) Markets() []domain.MarketId { return r.MarketList }

func (r *FakeMarketRegistry) Symbol(m domain.MarketId) (string, error) {
	s, ok := r.Symbols[m]
	if !ok {
		return "", fmt.Errorf("testutil: no symbol for %s", m)
	}
	return s, nil
}

// FakePriceLedger is a static in-memory PriceLedger. Postable defaults to
// always succeeding; set Unavailable to simulate StaleAttestation.
type FakePriceLedger struct {
	Prices      map[domain.MarketId]fixedpoint.F
	Unavailable bool
}

func NewFakePriceLedger() *FakePriceLedger {
	return &FakePriceLedger{Prices: make(map[domain.MarketId]fixedpoint.F)}
}

func (p *FakePriceLedger) Price(m domain.MarketId) (fixedpoint.F, error) {
	v, ok := p.Prices[m]
	if !ok {
		return fixedpoint.Zero, fmt.Errorf("testutil: no price for %s", m)
	}
	return v, nil
}

func (p *FakePriceLedger) GetPostableFormat(symbols []string, edges []chainio.PriceEdge) (*chainio.PostableAttestations, error) {
	if p.Unavailable {
		return nil, nil
	}
	return &chainio.PostableAttestations{Blob: []byte("fake-attestation")}, nil
}

// FakeStore satisfies internal/apply.Store for applier tests.
type FakeStore struct {
	mu       sync.Mutex
	watched  map[domain.Address]*borrower.State
	index    *borrower.IndexTable
	Refetch  func(ctx context.Context, addr domain.Address) error
	refCount map[domain.Address]int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		watched:  make(map[domain.Address]*borrower.State),
		index:    borrower.NewIndexTable(),
		refCount: make(map[domain.Address]int),
	}
}

func (s *FakeStore) Watch(addr domain.Address) *borrower.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := borrower.NewState(addr)
	s.watched[addr] = st
	return st
}

func (s *FakeStore) IsWatched(addr domain.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[addr]
	return ok
}

func (s *FakeStore) StateFor(addr domain.Address) (*borrower.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.watched[addr]
	return st, ok
}

func (s *FakeStore) IndexTable() *borrower.IndexTable { return s.index }

func (s *FakeStore) RefetchBorrower(ctx context.Context, addr domain.Address) error {
	s.mu.Lock()
	s.refCount[addr]++
	s.mu.Unlock()
	if s.Refetch != nil {
		return s.Refetch(ctx, addr)
	}
	return nil
}

func (s *FakeStore) RefetchCount(addr domain.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refCount[addr]
}
