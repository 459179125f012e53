package borrower_test

import (
	"testing"

	"LiquidCore/internal/borrower"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
)

var testAddr = domain.MustParseAddress("0x1111111111111111111111111111111111111111")

func TestMint_IncreasesSupplied(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Mint(1, fixedpoint.MustFromInt64(100), 10)

	snap := s.Snapshot()
	if got := snap[1].Supplied; got.Cmp(fixedpoint.MustFromInt64(100)) != 0 {
		t.Errorf("got %s, want 100", got)
	}
	if s.LastUpdatedBlock() != 10 {
		t.Errorf("lastUpdatedBlock got %d, want 10", s.LastUpdatedBlock())
	}
}

func TestRedeem_SaturatesAtZero(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Mint(1, fixedpoint.MustFromInt64(5), 1)

	drifted := s.Redeem(1, fixedpoint.MustFromInt64(7), 2)
	if !drifted {
		t.Error("expected drift to be reported")
	}
	snap := s.Snapshot()
	if !snap[1].Supplied.IsZero() {
		t.Errorf("expected supplied=0, got %s", snap[1].Supplied)
	}
}

func TestBorrow_SetsPrincipalAndIndexTogether(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Borrow(1, fixedpoint.MustFromInt64(10), fixedpoint.MustFromInt64(2), 5)

	snap := s.Snapshot()
	p := snap[1]
	if p.BorrowPrincipal.Cmp(fixedpoint.MustFromInt64(10)) != 0 {
		t.Errorf("principal got %s, want 10", p.BorrowPrincipal)
	}
	if p.BorrowIndexAtPrincipal.Cmp(fixedpoint.MustFromInt64(2)) != 0 {
		t.Errorf("index got %s, want 2", p.BorrowIndexAtPrincipal)
	}
}

func TestRepayBorrow_UpdatesBothFields(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Borrow(1, fixedpoint.MustFromInt64(10), fixedpoint.MustFromInt64(2), 5)
	s.RepayBorrow(1, fixedpoint.MustFromInt64(4), fixedpoint.MustFromInt64(3), 6)

	snap := s.Snapshot()
	p := snap[1]
	if p.BorrowPrincipal.Cmp(fixedpoint.MustFromInt64(4)) != 0 {
		t.Errorf("principal got %s, want 4", p.BorrowPrincipal)
	}
	if p.BorrowIndexAtPrincipal.Cmp(fixedpoint.MustFromInt64(3)) != 0 {
		t.Errorf("index got %s, want 3", p.BorrowIndexAtPrincipal)
	}
}

func TestLiquidateBorrow_SeizesCollateralOnly(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Mint(2, fixedpoint.MustFromInt64(50), 1)

	drifted := s.LiquidateBorrow(2, fixedpoint.MustFromInt64(20), 9)
	if drifted {
		t.Error("did not expect drift")
	}
	snap := s.Snapshot()
	if got := snap[2].Supplied; got.Cmp(fixedpoint.MustFromInt64(30)) != 0 {
		t.Errorf("got %s, want 30", got)
	}
}

func TestTransfer_MovesBetweenSuppliedBalances(t *testing.T) {
	from := borrower.NewState(testAddr)
	from.Mint(1, fixedpoint.MustFromInt64(10), 1)

	to := borrower.NewState(domain.MustParseAddress("0x2222222222222222222222222222222222222222"))

	drifted := from.TransferOut(1, fixedpoint.MustFromInt64(4), 2)
	if drifted {
		t.Error("did not expect drift")
	}
	to.TransferIn(1, fixedpoint.MustFromInt64(4), 2)

	if got := from.Snapshot()[1].Supplied; got.Cmp(fixedpoint.MustFromInt64(6)) != 0 {
		t.Errorf("from got %s, want 6", got)
	}
	if got := to.Snapshot()[1].Supplied; got.Cmp(fixedpoint.MustFromInt64(4)) != 0 {
		t.Errorf("to got %s, want 4", got)
	}
}

func TestMintThenPairedTransfer_NoDoubleCount(t *testing.T) {
	// §8 property 6: applying Mint(addr, x) followed by the *dropped* paired
	// Transfer(cToken, addr, x) must change supplied by exactly x. Here we
	// simulate the applier's dedup decision by simply never calling
	// TransferIn for the paired leg — the state-level guarantee under test
	// is that Mint alone produces the correct delta.
	s := borrower.NewState(testAddr)
	s.Mint(1, fixedpoint.MustFromInt64(100), 1)

	snap := s.Snapshot()
	if got := snap[1].Supplied; got.Cmp(fixedpoint.MustFromInt64(100)) != 0 {
		t.Errorf("got %s, want 100 (not 200)", got)
	}
}

func TestHydrateSnapshot_ZeroBorrowBalanceClearsIndex(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.HydrateSnapshot(1, fixedpoint.MustFromInt64(10), fixedpoint.Zero, fixedpoint.MustFromInt64(5), 100)

	snap := s.Snapshot()
	p := snap[1]
	if !p.BorrowPrincipal.IsZero() || !p.BorrowIndexAtPrincipal.IsZero() {
		t.Errorf("expected both borrow fields zero, got principal=%s index=%s", p.BorrowPrincipal, p.BorrowIndexAtPrincipal)
	}
}

func TestLastUpdatedBlock_OnlyIncreases(t *testing.T) {
	s := borrower.NewState(testAddr)
	s.Mint(1, fixedpoint.MustFromInt64(1), 10)
	s.Mint(1, fixedpoint.MustFromInt64(1), 3)

	if s.LastUpdatedBlock() != 10 {
		t.Errorf("got %d, want 10 (must not regress)", s.LastUpdatedBlock())
	}
}
