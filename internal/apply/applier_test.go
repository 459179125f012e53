package apply_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"LiquidCore/internal/apply"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/marketevent"
	"LiquidCore/internal/testutil"
)

var (
	addrA  = domain.MustParseAddress("0x1111111111111111111111111111111111111111")
	addrB  = domain.MustParseAddress("0x2222222222222222222222222222222222222222")
	market = domain.MarketId(1)
)

func newApplier(store apply.Store) *apply.EventApplier {
	return apply.NewEventApplier(store, zerolog.Nop(), nil)
}

func TestApply_Mint_UnwatchedDropped(t *testing.T) {
	store := testutil.NewFakeStore()
	a := newApplier(store)

	err := a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed,
		Minter: addrA, MintTokens: fixedpoint.MustFromInt64(10), BlockNumber: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if store.IsWatched(addrA) {
		t.Fatal("addr should never have been registered")
	}
}

func TestApply_Mint_WatchedIncreasesSupplied(t *testing.T) {
	store := testutil.NewFakeStore()
	state := store.Watch(addrA)
	a := newApplier(store)

	err := a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed,
		Minter: addrA, MintTokens: fixedpoint.MustFromInt64(10), BlockNumber: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := state.Snapshot()[market].Supplied; got.Cmp(fixedpoint.MustFromInt64(10)) != 0 {
		t.Errorf("got %s, want 10", got)
	}
}

func TestApply_TransferDedup_ZeroAddressIgnored(t *testing.T) {
	store := testutil.NewFakeStore()
	state := store.Watch(addrA)
	a := newApplier(store)

	must(t, a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed,
		Minter: addrA, MintTokens: fixedpoint.MustFromInt64(100), BlockNumber: 1,
	}))
	// paired Transfer(0x0 -> addrA, 100) must be ignored, not double-applied
	must(t, a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindTransfer, Status: marketevent.StatusConfirmed,
		From: domain.ZeroAddress, To: addrA, Amount: fixedpoint.MustFromInt64(100), BlockNumber: 1, LogIndex: 1,
	}))

	if got := state.Snapshot()[market].Supplied; got.Cmp(fixedpoint.MustFromInt64(100)) != 0 {
		t.Errorf("got %s, want 100 (not 200)", got)
	}
}

func TestApply_TransferBetweenUsers_Applied(t *testing.T) {
	store := testutil.NewFakeStore()
	stA := store.Watch(addrA)
	stB := store.Watch(addrB)
	a := newApplier(store)

	must(t, a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed,
		Minter: addrA, MintTokens: fixedpoint.MustFromInt64(10), BlockNumber: 1,
	}))
	must(t, a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindTransfer, Status: marketevent.StatusConfirmed,
		From: addrA, To: addrB, Amount: fixedpoint.MustFromInt64(4), BlockNumber: 2,
	}))

	if got := stA.Snapshot()[market].Supplied; got.Cmp(fixedpoint.MustFromInt64(6)) != 0 {
		t.Errorf("A got %s, want 6", got)
	}
	if got := stB.Snapshot()[market].Supplied; got.Cmp(fixedpoint.MustFromInt64(4)) != 0 {
		t.Errorf("B got %s, want 4", got)
	}
}

func TestApply_AccrueInterest_RejectsRegression(t *testing.T) {
	store := testutil.NewFakeStore()
	a := newApplier(store)

	must(t, a.Apply(marketevent.Event{Market: market, Kind: marketevent.KindAccrueInterest, Status: marketevent.StatusConfirmed, BorrowIndex: fixedpoint.MustFromInt64(5), BlockNumber: 1}))
	must(t, a.Apply(marketevent.Event{Market: market, Kind: marketevent.KindAccrueInterest, Status: marketevent.StatusConfirmed, BorrowIndex: fixedpoint.MustFromInt64(3), BlockNumber: 2}))

	got, err := store.IndexTable().Get(market)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(fixedpoint.MustFromInt64(5)) != 0 {
		t.Errorf("got %s, want 5 (regression should be rejected)", got)
	}
}

func TestApply_OutOfOrder_Dropped(t *testing.T) {
	store := testutil.NewFakeStore()
	state := store.Watch(addrA)
	a := newApplier(store)

	must(t, a.Apply(marketevent.Event{Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed, Minter: addrA, MintTokens: fixedpoint.MustFromInt64(1), BlockNumber: 5, LogIndex: 0}))
	must(t, a.Apply(marketevent.Event{Market: market, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed, Minter: addrA, MintTokens: fixedpoint.MustFromInt64(1), BlockNumber: 3, LogIndex: 0}))

	if got := state.Snapshot()[market].Supplied; got.Cmp(fixedpoint.MustFromInt64(1)) != 0 {
		t.Errorf("got %s, want 1 (stale event must be dropped)", got)
	}
}

func TestApplyWithRecovery_RevertedTriggersRefetch(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Watch(addrA)
	a := newApplier(store)

	err := a.ApplyWithRecovery(context.Background(), marketevent.Event{
		Market: market, Kind: marketevent.KindBorrow, Status: marketevent.StatusReverted,
		Account: addrA, AccountBorrowsNew: fixedpoint.MustFromInt64(10), BorrowIndexNow: fixedpoint.MustFromInt64(1), BlockNumber: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if store.RefetchCount(addrA) != 1 {
		t.Errorf("expected one refetch, got %d", store.RefetchCount(addrA))
	}
}

func TestApply_LiquidateBorrow_SeizesCollateralMarketOnly(t *testing.T) {
	store := testutil.NewFakeStore()
	state := store.Watch(addrA)
	a := newApplier(store)

	collateralMarket := domain.MarketId(2)
	must(t, a.Apply(marketevent.Event{Market: collateralMarket, Kind: marketevent.KindMint, Status: marketevent.StatusConfirmed, Minter: addrA, MintTokens: fixedpoint.MustFromInt64(50), BlockNumber: 1}))
	must(t, a.Apply(marketevent.Event{
		Market: market, Kind: marketevent.KindLiquidateBorrow, Status: marketevent.StatusConfirmed,
		Borrower: addrA, SeizeTokens: fixedpoint.MustFromInt64(20), CTokenCollateral: collateralMarket, BlockNumber: 2,
	}))

	if got := state.Snapshot()[collateralMarket].Supplied; got.Cmp(fixedpoint.MustFromInt64(30)) != 0 {
		t.Errorf("got %s, want 30", got)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
