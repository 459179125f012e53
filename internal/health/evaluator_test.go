package health_test

import (
	"testing"

	"LiquidCore/internal/borrower"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/health"
	"LiquidCore/internal/testutil"
)

var addr = domain.MustParseAddress("0x3333333333333333333333333333333333333333")

func f(s string) fixedpoint.F { return fixedpoint.MustFromString(s) }

// S1: healthy borrower, single market.
func TestEvaluate_S1_HealthyNoCandidate(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: f("100"), BorrowPrincipal: f("1.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand != nil {
		t.Fatalf("expected no candidate, got %+v", cand)
	}
}

// S2: underwater, borrowPrincipal = 2.0 -> health = 0.75, candidate.
func TestEvaluate_S2_Underwater(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: f("100"), BorrowPrincipal: f("2.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if cand.RepayMarket != m || cand.SeizeMarket != m {
		t.Errorf("expected repay=seize=%s, got repay=%s seize=%s", m, cand.RepayMarket, cand.SeizeMarket)
	}
	if !cand.ExpectedRevenueEth.IsPositive() {
		t.Errorf("expected positive revenue, got %s", cand.ExpectedRevenueEth)
	}
}

// S3: accrual-driven — same starting point as S1 but the current index has
// doubled, without any Borrow event, and the borrower becomes a candidate.
func TestEvaluate_S3_AccrualDriven(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: f("100"), BorrowPrincipal: f("1.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("2.0")}, // doubled
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand == nil {
		t.Fatal("expected a candidate once index doubles owed amount")
	}
}

// S4: redeem saturation must not cause the evaluator to panic or error —
// a fully-redeemed, zero-supply market should simply contribute nothing.
func TestEvaluate_S4_ZeroSuppliedNoPanic(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: fixedpoint.Zero, BorrowPrincipal: fixedpoint.Zero, BorrowIndexAtPrincipal: fixedpoint.Zero},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand != nil {
		t.Fatalf("no borrow at all should never be a candidate, got %+v", cand)
	}
}

// S5: seizeMarket must be chosen by supplyEth, not by raw supplied amount.
func TestEvaluate_S5_SeizeChosenBySupplyEthNotSupplied(t *testing.T) {
	m1 := domain.MarketId(1)
	m2 := domain.MarketId(2)
	registry := testutil.NewFakeMarketRegistry(f("1.0"), f("1.08")).
		WithMarket(m1, "cDAI", f("0.5")).
		WithMarket(m2, "cETH", f("0.75"))
	registry.SetCollateral(addr, m1, true)
	registry.SetCollateral(addr, m2, true)

	prices := testutil.NewFakePriceLedger()
	prices.Prices[m1] = f("1.0")
	prices.Prices[m2] = f("2000.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			// m1 has the much larger raw `supplied` figure (1000 vs 2), but
			// m2's supplyEth (1 underlying * 2000 price = 2000) dwarfs m1's
			// supplyEth (10 underlying * 1.0 price = 10).
			m1: {Supplied: f("1000"), BorrowPrincipal: fixedpoint.Zero, BorrowIndexAtPrincipal: fixedpoint.Zero},
			m2: {Supplied: f("2"), BorrowPrincipal: f("50.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex: map[domain.MarketId]fixedpoint.F{m1: f("1.0"), m2: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{
			m1: f("0.01"), // supplyUnderlying = 10, supplyEth = 10
			m2: f("0.5"),  // supplyUnderlying = 1, supplyEth = 2000
		},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if cand.SeizeMarket != m2 {
		t.Errorf("expected seizeMarket=%s (higher supplyEth), got %s", m2, cand.SeizeMarket)
	}
}

// §8 property 7 (StaleAttestation): a candidate is dropped, not errored,
// when no postable attestation is available.
func TestEvaluate_StaleAttestation_DropsCandidate(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")
	prices.Unavailable = true

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: f("100"), BorrowPrincipal: f("2.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	cand, err := health.Evaluate(snap, registry, prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cand != nil {
		t.Fatal("expected candidate to be dropped when attestation is unavailable")
	}
}

func TestEvaluate_Determinism(t *testing.T) {
	m := domain.MarketId(1)
	registry := testutil.NewFakeMarketRegistry(f("0.5"), f("1.08")).WithMarket(m, "cETH", f("0.75"))
	registry.SetCollateral(addr, m, true)
	prices := testutil.NewFakePriceLedger()
	prices.Prices[m] = f("1.0")

	snap := health.Snapshot{
		Address: addr,
		Positions: map[domain.MarketId]borrower.MarketPosition{
			m: {Supplied: f("100"), BorrowPrincipal: f("2.0"), BorrowIndexAtPrincipal: f("1.0")},
		},
		CurrentIndex:  map[domain.MarketId]fixedpoint.F{m: f("1.0")},
		ExchangeRates: map[domain.MarketId]fixedpoint.F{m: f("0.02")},
	}

	c1, err1 := health.Evaluate(snap, registry, prices, nil)
	c2, err2 := health.Evaluate(snap, registry, prices, nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v %v", err1, err2)
	}
	if c1.ExpectedRevenueEth.Cmp(c2.ExpectedRevenueEth) != 0 {
		t.Error("repeated evaluation of identical snapshot must be identical")
	}
}
