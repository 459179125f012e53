// Package health implements HealthEvaluator: given a borrower's replica,
// the current accrual indices and exchange rates, and the MarketRegistry
// and PriceLedger collaborators, it computes liquidity in ETH units, the
// health factor, and the most profitable (repay, seize) market pair.
package health

import (
	"fmt"
	"sort"

	"LiquidCore/internal/borrower"
	"LiquidCore/internal/chainio"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/observability"
)

// Snapshot is the consistent, point-in-time input to Evaluate: one
// borrower's positions plus the market-wide accrual/exchange-rate data
// scan gathered atomically per §5.
type Snapshot struct {
	Address       domain.Address
	Positions     map[domain.MarketId]borrower.MarketPosition
	CurrentIndex  map[domain.MarketId]fixedpoint.F
	ExchangeRates map[domain.MarketId]fixedpoint.F
}

type marketFigures struct {
	supplyUnderlying fixedpoint.F
	borrowUnderlying fixedpoint.F
	supplyEth        fixedpoint.F
	borrowEth        fixedpoint.F
	collateralEth    fixedpoint.F
}

// Evaluate computes, for a single borrower snapshot, whether the account is
// liquidatable and, if so, the best (repay, seize) candidate. It returns
// (nil, nil) for non-liquidatable accounts and for accounts whose
// attestations are not currently postable — neither is an error condition
// for the scan as a whole (§4.5, §7 StaleAttestation). A non-nil error
// signals a fatal, scan-wide condition (an uninitialized accrual index, or a
// borrowIndexAtPrincipal exceeding currentIndex, which the protocol
// guarantees cannot happen and which therefore indicates a stale-event bug
// upstream).
func Evaluate(snap Snapshot, registry chainio.MarketRegistry, prices chainio.PriceLedger, metrics *observability.Metrics) (*LiquidationCandidate, error) {
	figures := make(map[domain.MarketId]marketFigures, len(snap.Positions))

	for m, pos := range snap.Positions {
		exRate, ok := snap.ExchangeRates[m]
		if !ok {
			return nil, fmt.Errorf("health: %w: no exchange rate snapshot for %s", borrower.ErrUninitializedIndex, m)
		}
		supplyUnderlying := pos.Supplied.Mul(exRate)

		borrowUnderlying := fixedpoint.Zero
		if !pos.BorrowPrincipal.IsZero() {
			currentIndex, ok := snap.CurrentIndex[m]
			if !ok {
				return nil, fmt.Errorf("health: %w: no accrual index for %s", borrower.ErrUninitializedIndex, m)
			}
			if currentIndex.LessThan(pos.BorrowIndexAtPrincipal) {
				return nil, fmt.Errorf("health: stale-event bug: currentIndex < indexAtPrincipal for %s", m)
			}
			ratio, err := pos.BorrowPrincipal.Mul(currentIndex).Div(pos.BorrowIndexAtPrincipal)
			if err != nil {
				return nil, fmt.Errorf("health: %s: %w", m, err)
			}
			borrowUnderlying = ratio
		}

		price, err := prices.Price(m)
		if err != nil {
			return nil, fmt.Errorf("health: price for %s: %w", m, err)
		}
		collateralFactor, err := registry.CollateralFactor(m)
		if err != nil {
			return nil, fmt.Errorf("health: collateral factor for %s: %w", m, err)
		}

		supplyEth := supplyUnderlying.Mul(price)
		borrowEth := borrowUnderlying.Mul(price)

		figures[m] = marketFigures{
			supplyUnderlying: supplyUnderlying,
			borrowUnderlying: borrowUnderlying,
			supplyEth:        supplyEth,
			borrowEth:        borrowEth,
			collateralEth:    supplyEth.Mul(collateralFactor),
		}
	}

	totalCollateralEth := fixedpoint.Zero
	totalBorrowEth := fixedpoint.Zero
	for _, f := range figures {
		totalCollateralEth = totalCollateralEth.Add(f.collateralEth)
		totalBorrowEth = totalBorrowEth.Add(f.borrowEth)
	}

	if totalBorrowEth.IsZero() {
		return nil, nil // health = +infinity, never a candidate
	}
	health, err := totalCollateralEth.Div(totalBorrowEth)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if !health.LessThan(fixedpoint.One) {
		return nil, nil
	}

	repayMarket, ok := argmaxBorrowEth(figures)
	if !ok {
		return nil, nil
	}
	seizeMarket, ok, err := argmaxSeizeEth(snap.Address, figures, registry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	closeFactor, err := registry.CloseFactor()
	if err != nil {
		return nil, fmt.Errorf("health: close factor: %w", err)
	}
	liquidationIncentive, err := registry.LiquidationIncentive()
	if err != nil {
		return nil, fmt.Errorf("health: liquidation incentive: %w", err)
	}

	maxRepayEth := figures[repayMarket].borrowEth.Mul(closeFactor)
	incentivized := maxRepayEth.Mul(liquidationIncentive)
	maxSeizeEth := fixedpoint.MinF(incentivized, figures[seizeMarket].supplyEth)

	bonusDivided, err := maxSeizeEth.Div(liquidationIncentive)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	expectedRevenueEth, err := maxSeizeEth.Sub(bonusDivided)
	if err != nil {
		// A non-positive spread means this pair is not actually profitable;
		// treat it the same as "not a candidate" rather than as an error.
		return nil, nil
	}
	if !expectedRevenueEth.IsPositive() {
		return nil, nil
	}

	repaySymbol, err := registry.Symbol(repayMarket)
	if err != nil {
		return nil, fmt.Errorf("health: symbol for %s: %w", repayMarket, err)
	}
	seizeSymbol, err := registry.Symbol(seizeMarket)
	if err != nil {
		return nil, fmt.Errorf("health: symbol for %s: %w", seizeMarket, err)
	}

	repayPrice, _ := prices.Price(repayMarket)
	seizePrice, _ := prices.Price(seizeMarket)

	symbols := []string{repaySymbol, seizeSymbol}
	edges := []chainio.PriceEdge{
		{Symbol: repaySymbol, Min: repayPrice, Max: repayPrice},
		{Symbol: seizeSymbol, Min: seizePrice, Max: seizePrice},
	}

	attestations, err := prices.GetPostableFormat(symbols, edges)
	if err != nil {
		return nil, fmt.Errorf("health: postable format: %w", err)
	}
	if attestations == nil {
		if metrics != nil {
			metrics.AttestationsStale.Inc()
		}
		return nil, nil // StaleAttestation: silently dropped, not a scan error
	}

	return &LiquidationCandidate{
		Address:            snap.Address,
		RepayMarket:        repayMarket,
		SeizeMarket:        seizeMarket,
		PricesToReport:     *attestations,
		ExpectedRevenueEth: expectedRevenueEth,
	}, nil
}

func argmaxBorrowEth(figures map[domain.MarketId]marketFigures) (domain.MarketId, bool) {
	markets := sortedMarkets(figures)
	best, ok := domain.MarketId(0), false
	var bestVal fixedpoint.F
	for _, m := range markets {
		f := figures[m]
		if f.borrowEth.IsZero() {
			continue
		}
		if !ok || f.borrowEth.GreaterThan(bestVal) {
			best, bestVal, ok = m, f.borrowEth, true
		}
	}
	return best, ok
}

func argmaxSeizeEth(addr domain.Address, figures map[domain.MarketId]marketFigures, registry chainio.MarketRegistry) (domain.MarketId, bool, error) {
	markets := sortedMarkets(figures)
	best, ok := domain.MarketId(0), false
	var bestVal fixedpoint.F
	for _, m := range markets {
		isCollateral, err := registry.IsCollateral(addr, m)
		if err != nil {
			return 0, false, fmt.Errorf("health: is-collateral for %s: %w", m, err)
		}
		if !isCollateral {
			continue
		}
		f := figures[m]
		if f.supplyEth.IsZero() {
			continue
		}
		if !ok || f.supplyEth.GreaterThan(bestVal) {
			best, bestVal, ok = m, f.supplyEth, true
		}
	}
	return best, ok, nil
}

// sortedMarkets returns markets in ascending MarketId order so that
// argmax ties are broken by lowest MarketId (§4.5 steps 5): the first
// strictly-greater candidate encountered in ascending order wins, and later
// equal values never replace it.
func sortedMarkets(figures map[domain.MarketId]marketFigures) []domain.MarketId {
	out := make([]domain.MarketId, 0, len(figures))
	for m := range figures {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
