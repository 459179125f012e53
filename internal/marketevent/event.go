// Package marketevent defines the decoded cToken market events consumed by
// the applier: Mint, Redeem, Borrow, RepayBorrow, LiquidateBorrow, Transfer,
// and AccrueInterest, each carrying the ordering and status fields needed to
// apply them in order and unwind them on reorg.
package marketevent

import (
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

// Kind discriminates the payload carried by an Event.
type Kind int32

const (
	KindUnknown Kind = iota
	KindAccrueInterest
	KindMint
	KindRedeem
	KindBorrow
	KindRepayBorrow
	KindLiquidateBorrow
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindAccrueInterest:
		return "AccrueInterest"
	case KindMint:
		return "Mint"
	case KindRedeem:
		return "Redeem"
	case KindBorrow:
		return "Borrow"
	case KindRepayBorrow:
		return "RepayBorrow"
	case KindLiquidateBorrow:
		return "LiquidateBorrow"
	case KindTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// Status reports whether an event is still in effect or has been
// invalidated by a chain reorganization.
type Status int32

const (
	StatusConfirmed Status = iota
	StatusReverted
)

func (s Status) String() string {
	if s == StatusReverted {
		return "reverted"
	}
	return "confirmed"
}

// Event is a single decoded market log, positioned by (BlockNumber,
// LogIndex) for ordering and carrying the payload fields needed by every
// Kind. Only the fields relevant to Kind are populated by decoders; the
// applier reads exactly the subset each handler needs.
type Event struct {
	Market      domain.MarketId
	Kind        Kind
	BlockNumber uint64
	LogIndex    uint32
	Status      Status

	// Mint
	Minter     domain.Address
	MintTokens fixedpoint.F

	// Redeem
	Redeemer     domain.Address
	RedeemTokens fixedpoint.F

	// Borrow / RepayBorrow
	Account           domain.Address
	AccountBorrowsNew fixedpoint.F
	BorrowIndexNow    fixedpoint.F

	// LiquidateBorrow: the market on the Event itself (Market field) is the
	// debt market being repaid; CTokenCollateral is the market whose supply
	// is seized.
	Borrower         domain.Address
	SeizeTokens      fixedpoint.F
	CTokenCollateral domain.MarketId

	// Transfer
	From   domain.Address
	To     domain.Address
	Amount fixedpoint.F

	// AccrueInterest
	BorrowIndex fixedpoint.F
}
