package borrower

import (
	"sync"

	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

// MarketPosition is one market's slice of a State: supplied cTokens plus the
// borrow-principal/index-at-principal pair. Either both borrow fields are
// zero or both are strictly positive (§3 invariant); State.Borrow,
// State.RepayBorrow and State.HydrateSnapshot are the only mutators that
// write borrow fields, and they always write both together.
type MarketPosition struct {
	Supplied               fixedpoint.F
	BorrowPrincipal        fixedpoint.F
	BorrowIndexAtPrincipal fixedpoint.F
}

// State is the per-account replica of borrow/supply positions across every
// market the account has touched. It is created on registration, hydrated
// once from ChainReader, and thereafter mutated exclusively by the applier
// dispatch methods below — never written to directly by scan.
type State struct {
	mu               sync.RWMutex
	Address          domain.Address
	positions        map[domain.MarketId]*MarketPosition
	lastUpdatedBlock uint64
}

// NewState returns an empty replica for addr.
func NewState(addr domain.Address) *State {
	return &State{
		Address:   addr,
		positions: make(map[domain.MarketId]*MarketPosition),
	}
}

func (s *State) position(m domain.MarketId) *MarketPosition {
	p, ok := s.positions[m]
	if !ok {
		p = &MarketPosition{Supplied: fixedpoint.Zero, BorrowPrincipal: fixedpoint.Zero, BorrowIndexAtPrincipal: fixedpoint.Zero}
		s.positions[m] = p
	}
	return p
}

func (s *State) bumpBlock(block uint64) {
	if block > s.lastUpdatedBlock {
		s.lastUpdatedBlock = block
	}
}

// LastUpdatedBlock returns the highest block whose events have been applied.
func (s *State) LastUpdatedBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdatedBlock
}

// Snapshot returns a deep, consistent copy of every market position, safe to
// read without holding State's lock afterward. This is the copy-on-read
// primitive scan uses per §5.
func (s *State) Snapshot() map[domain.MarketId]MarketPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.MarketId]MarketPosition, len(s.positions))
	for m, p := range s.positions {
		out[m] = *p
	}
	return out
}

// HydrateSnapshot overwrites one market's position with a freshly fetched
// on-chain snapshot for that market, leaving other markets untouched — used
// both at registration time and by full-refetch reorg recovery.
func (s *State) HydrateSnapshot(m domain.MarketId, supplied, borrowBalance, borrowIndex fixedpoint.F, atBlock uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	p.Supplied = supplied
	if borrowBalance.IsZero() {
		p.BorrowPrincipal = fixedpoint.Zero
		p.BorrowIndexAtPrincipal = fixedpoint.Zero
	} else {
		p.BorrowPrincipal = borrowBalance
		p.BorrowIndexAtPrincipal = borrowIndex
	}
	s.bumpBlock(atBlock)
}

// Mint applies supplied[m] += mintTokens.
func (s *State) Mint(m domain.MarketId, mintTokens fixedpoint.F, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	p.Supplied = p.Supplied.Add(mintTokens)
	s.bumpBlock(block)
}

// Redeem applies supplied[m] -= redeemTokens, saturating at zero. drifted
// reports whether saturation occurred, so the applier can log a StateDrift
// warning and count it; no refetch is scheduled.
func (s *State) Redeem(m domain.MarketId, redeemTokens fixedpoint.F, block uint64) (drifted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	next, saturated := p.Supplied.SubSaturating(redeemTokens)
	p.Supplied = next
	s.bumpBlock(block)
	return saturated
}

// Borrow applies borrowPrincipal[m] := accountBorrowsNew and
// borrowIndexAtPrincipal[m] := borrowIndexNow; a zero accountBorrowsNew
// clears both fields to zero.
func (s *State) Borrow(m domain.MarketId, accountBorrowsNew, borrowIndexNow fixedpoint.F, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	p.BorrowPrincipal = accountBorrowsNew
	if accountBorrowsNew.IsZero() {
		p.BorrowIndexAtPrincipal = fixedpoint.Zero
	} else {
		p.BorrowIndexAtPrincipal = borrowIndexNow
	}
	s.bumpBlock(block)
}

// RepayBorrow has the same shape as Borrow (§4.3).
func (s *State) RepayBorrow(m domain.MarketId, accountBorrowsNew, borrowIndexNow fixedpoint.F, block uint64) {
	s.Borrow(m, accountBorrowsNew, borrowIndexNow, block)
}

// LiquidateBorrow applies supplied[cTokenCollateral] -= seizeTokens,
// saturating at zero. The debt side is already reflected by a preceding
// RepayBorrow event (§4.3), so this method only ever touches the collateral
// market.
func (s *State) LiquidateBorrow(cTokenCollateral domain.MarketId, seizeTokens fixedpoint.F, block uint64) (drifted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(cTokenCollateral)
	next, saturated := p.Supplied.SubSaturating(seizeTokens)
	p.Supplied = next
	s.bumpBlock(block)
	return saturated
}

// TransferOut applies supplied[m] -= amount, saturating at zero, for when
// this account is the Transfer's `from`.
func (s *State) TransferOut(m domain.MarketId, amount fixedpoint.F, block uint64) (drifted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	next, saturated := p.Supplied.SubSaturating(amount)
	p.Supplied = next
	s.bumpBlock(block)
	return saturated
}

// TransferIn applies supplied[m] += amount, for when this account is the
// Transfer's `to`.
func (s *State) TransferIn(m domain.MarketId, amount fixedpoint.F, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.position(m)
	p.Supplied = p.Supplied.Add(amount)
	s.bumpBlock(block)
}
