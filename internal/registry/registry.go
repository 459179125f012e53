// Package registry implements BorrowerRegistry: it owns the watched
// borrower map and the borrow-index table, drives initial hydration and
// ongoing event ingestion, and exposes scan for on-demand liquidation
// candidate enumeration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"LiquidCore/internal/apply"
	"LiquidCore/internal/borrower"
	"LiquidCore/internal/chainio"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/health"
	"LiquidCore/internal/marketevent"
	"LiquidCore/internal/observability"
)

// ErrNotInitialized is returned by Scan when called before Init has
// populated the BorrowIndexTable.
var ErrNotInitialized = errors.New("registry: not initialized")

var errNotWatched = errors.New("address not watched")

// driftTolerance bounds how far a re-fetched on-chain balance may differ
// from the in-memory replica before Verify reports a mismatch. Exchange
// rates and indices accrue continuously, so an exact-equality check would
// flag a drift on nearly every call; a tight relative tolerance instead
// catches genuine divergence (a missed or misapplied event) while staying
// silent on ordinary accrual between the replica's last update and the
// verification read.
const driftTolerance = "0.0001" // 1 basis point

// Registry owns the BorrowerState map and the BorrowIndexTable (§4.6). It
// realizes the concurrency model of §5 as a reader-writer discipline:
// Run holds the write path (via applier.Apply, itself unlocked —
// borrower.State and borrower.IndexTable carry their own locks), and scan
// takes brief read snapshots of exactly the state it needs after its chain
// reads, so exchange-rate fetches and health evaluation never hold a lock.
type Registry struct {
	mu       sync.RWMutex
	watched  map[domain.Address]*borrower.State
	index    *borrower.IndexTable
	reader   chainio.ChainReader
	applier  *apply.EventApplier
	log      zerolog.Logger
	metrics  *observability.Metrics
	initDone bool
}

// New constructs an empty Registry. Call Init before Register or Scan.
func New(reader chainio.ChainReader, log zerolog.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		watched: make(map[domain.Address]*borrower.State),
		index:   borrower.NewIndexTable(),
		reader:  reader,
		log:     log,
		metrics: metrics,
	}
	r.applier = apply.NewEventApplier(r, log, metrics)
	return r
}

// IndexTable returns the registry's borrow-index table, satisfying
// apply.Store.
func (r *Registry) IndexTable() *borrower.IndexTable { return r.index }

// IsWatched satisfies apply.Store.
func (r *Registry) IsWatched(addr domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watched[addr]
	return ok
}

// StateFor satisfies apply.Store.
func (r *Registry) StateFor(addr domain.Address) (*borrower.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.watched[addr]
	return st, ok
}

// RefetchBorrower satisfies apply.Store: it re-hydrates every market
// position for addr from ChainReader at the current head block, the
// full-refetch reorg recovery strategy permitted by §4.4.
func (r *Registry) RefetchBorrower(ctx context.Context, addr domain.Address) error {
	st, ok := r.StateFor(addr)
	if !ok {
		return nil
	}
	var head uint64
	if err := r.chainRead(ctx, "GetBlockNumber", func() error {
		var err error
		head, err = r.reader.GetBlockNumber(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("registry: refetch %s: %w", addr, err)
	}
	markets := r.markets()
	for _, m := range markets {
		var snap chainio.AccountSnapshot
		if err := r.chainRead(ctx, "GetAccountSnapshot", func() error {
			var err error
			snap, err = r.reader.GetAccountSnapshot(ctx, m, addr, head)
			return err
		}); err != nil {
			return fmt.Errorf("registry: refetch %s market %s: %w", addr, m, err)
		}
		st.HydrateSnapshot(m, snap.SuppliedCTokens, snap.BorrowBalance, snap.BorrowIndex, head)
	}
	return nil
}

// chainRead wraps a single ChainReader call with the bounded exponential
// backoff policy §7 specifies for ChainReadError: retried at the boundary,
// then surfaced once the retry budget is exhausted. It records retry
// attempts, call latency, and exhaustion failures against the chainio
// metrics, labeled by op.
func (r *Registry) chainRead(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	attempt := 0
	err := chainio.WithRetry(ctx, op, func() error {
		attempt++
		if attempt > 1 && r.metrics != nil {
			r.metrics.ChainReadRetries.WithLabelValues(op).Inc()
		}
		if err := fn(); err != nil {
			return &chainio.ChainReadError{Op: op, Err: err}
		}
		return nil
	})
	if r.metrics != nil {
		r.metrics.ChainReadDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			r.metrics.ChainReadErrors.WithLabelValues(op).Inc()
		}
	}
	return err
}

func (r *Registry) markets() []domain.MarketId {
	snap := r.index.Snapshot()
	out := make([]domain.MarketId, 0, len(snap))
	for m := range snap {
		out = append(out, m)
	}
	return out
}

// Init populates the BorrowIndexTable for every market from ChainReader at
// the current head block (§4.6). markets is the fixed enumeration of
// supported markets; the spec treats MarketId as known at config time, so
// the caller (cmd/liquidator, from its LIQUIDCORE_MARKETS setting) supplies
// it here.
func (r *Registry) Init(ctx context.Context, markets []domain.MarketId) error {
	var head uint64
	if err := r.chainRead(ctx, "GetBlockNumber", func() error {
		var err error
		head, err = r.reader.GetBlockNumber(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("registry: init: get block number: %w", err)
	}
	for _, m := range markets {
		var idx fixedpoint.F
		if err := r.chainRead(ctx, "GetBorrowIndex", func() error {
			var err error
			idx, err = r.reader.GetBorrowIndex(ctx, m, head)
			return err
		}); err != nil {
			return fmt.Errorf("registry: init: borrow index for %s: %w", m, err)
		}
		r.index.Set(m, idx)
	}
	r.mu.Lock()
	r.initDone = true
	r.mu.Unlock()
	return nil
}

// Register adds addresses not already watched, hydrating each from a full
// ChainReader snapshot at the current head block (§4.6). Existing entries
// are left untouched.
func (r *Registry) Register(ctx context.Context, addresses []domain.Address) error {
	var head uint64
	if err := r.chainRead(ctx, "GetBlockNumber", func() error {
		var err error
		head, err = r.reader.GetBlockNumber(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("registry: register: get block number: %w", err)
	}
	markets := r.markets()

	for _, addr := range addresses {
		if r.IsWatched(addr) {
			continue
		}
		st := borrower.NewState(addr)
		for _, m := range markets {
			var snap chainio.AccountSnapshot
			if err := r.chainRead(ctx, "GetAccountSnapshot", func() error {
				var err error
				snap, err = r.reader.GetAccountSnapshot(ctx, m, addr, head)
				return err
			}); err != nil {
				return fmt.Errorf("registry: register %s market %s: %w", addr, m, err)
			}
			st.HydrateSnapshot(m, snap.SuppliedCTokens, snap.BorrowBalance, snap.BorrowIndex, head)
		}
		r.mu.Lock()
		r.watched[addr] = st
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.WatchedAddresses.Set(float64(r.watchedCount()))
		}
	}
	return nil
}

// Unregister removes addr; subsequent events for it are dropped by the
// applier's watched-set filter.
func (r *Registry) Unregister(addr domain.Address) {
	r.mu.Lock()
	delete(r.watched, addr)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.WatchedAddresses.Set(float64(r.watchedCount()))
	}
}

func (r *Registry) watchedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watched)
}

// ApplyMarketEvent feeds a single decoded market event through the
// applier. It is the sole write path into watched BorrowerState and the
// BorrowIndexTable; callers (Run) invoke it serially per the
// per-market ordering requirement of §5.
func (r *Registry) ApplyMarketEvent(ctx context.Context, evt marketevent.Event) error {
	return r.applier.ApplyWithRecovery(ctx, evt)
}

// Scan snapshots exchange rates via ChainReader (in parallel across
// markets, permitted by §4.6) and then the BorrowIndexTable, and evaluates
// every watched borrower against that snapshot, returning every non-nil
// LiquidationCandidate. It never mutates state and may be called while
// events are being ingested. The exchange-rate reads, the index-table copy
// and each borrower's copy are taken one after another with no lock spanning
// them, so an event applied in between can be reflected in some of these
// reads and not in others.
func (r *Registry) Scan(ctx context.Context, marketRegistry chainio.MarketRegistry, priceLedger chainio.PriceLedger) ([]health.LiquidationCandidate, error) {
	r.mu.RLock()
	ready := r.initDone
	r.mu.RUnlock()
	if !ready {
		return nil, fmt.Errorf("registry: scan: %w", ErrNotInitialized)
	}

	scanID := uuid.New()
	log := r.log.With().Str("scan_id", scanID.String()).Logger()

	start := time.Now()
	if r.metrics != nil {
		r.metrics.ScanRequests.Inc()
		defer func() {
			r.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}()
	}

	var head uint64
	if err := r.chainRead(ctx, "GetBlockNumber", func() error {
		var err error
		head, err = r.reader.GetBlockNumber(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("registry: scan: get block number: %w", err)
	}

	markets := marketRegistry.Markets()
	rates, err := r.fetchExchangeRates(ctx, markets, head)
	if err != nil {
		return nil, fmt.Errorf("registry: scan: %w", err)
	}
	currentIndex := r.index.Snapshot()

	r.mu.RLock()
	addrs := make([]domain.Address, 0, len(r.watched))
	states := make([]*borrower.State, 0, len(r.watched))
	for addr, st := range r.watched {
		addrs = append(addrs, addr)
		states = append(states, st)
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.ScanBorrowersSeen.Observe(float64(len(addrs)))
	}

	var candidates []health.LiquidationCandidate
	for i, st := range states {
		select {
		case <-ctx.Done():
			return candidates, ctx.Err()
		default:
		}

		snap := health.Snapshot{
			Address:       addrs[i],
			Positions:     st.Snapshot(),
			CurrentIndex:  currentIndex,
			ExchangeRates: rates,
		}
		cand, err := health.Evaluate(snap, marketRegistry, priceLedger, r.metrics)
		if err != nil {
			return candidates, fmt.Errorf("registry: scan: evaluate %s: %w", addrs[i], err)
		}
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	if r.metrics != nil {
		r.metrics.ScanCandidates.Observe(float64(len(candidates)))
	}
	log.Info().Int("candidates", len(candidates)).Int("borrowers", len(addrs)).Uint64("block", head).Msg("scan complete")
	return candidates, nil
}

// fetchExchangeRates reads every market's exchange rate concurrently via
// ChainReader (§4.6: "parallel reads permitted"), using errgroup to fan out
// and collect the first error.
func (r *Registry) fetchExchangeRates(ctx context.Context, markets []domain.MarketId, head uint64) (map[domain.MarketId]fixedpoint.F, error) {
	rates := make(map[domain.MarketId]fixedpoint.F, len(markets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range markets {
		m := m
		g.Go(func() error {
			var rate fixedpoint.F
			if err := r.chainRead(gctx, "GetExchangeRateStored", func() error {
				var err error
				rate, err = r.reader.GetExchangeRateStored(gctx, m, head)
				return err
			}); err != nil {
				return fmt.Errorf("exchange rate for %s: %w", m, err)
			}
			mu.Lock()
			rates[m] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rates, nil
}

// Verify re-fetches addr's account snapshot from ChainReader and compares
// it against the in-memory replica, market by market. It is the
// randomCheck hook (§9 open question): the caller decides when and how
// often to spot-check a watched borrower against the chain, independent of
// the event-driven write path. A false return with a nil error means a
// drift was found (and is recorded via the StateDrift metric, same as the
// applier's own saturation-driven drift detection) — it is not itself an
// error condition.
func (r *Registry) Verify(ctx context.Context, addr domain.Address) (bool, error) {
	st, ok := r.StateFor(addr)
	if !ok {
		return false, fmt.Errorf("registry: verify %s: %w", addr, errNotWatched)
	}

	var head uint64
	if err := r.chainRead(ctx, "GetBlockNumber", func() error {
		var err error
		head, err = r.reader.GetBlockNumber(ctx)
		return err
	}); err != nil {
		return false, fmt.Errorf("registry: verify %s: %w", addr, err)
	}

	tolerance := fixedpoint.MustFromString(driftTolerance)
	replica := st.Snapshot()
	markets := r.markets()

	clean := true
	for _, m := range markets {
		var onChain chainio.AccountSnapshot
		if err := r.chainRead(ctx, "GetAccountSnapshot", func() error {
			var err error
			onChain, err = r.reader.GetAccountSnapshot(ctx, m, addr, head)
			return err
		}); err != nil {
			return false, fmt.Errorf("registry: verify %s market %s: %w", addr, m, err)
		}
		pos := replica[m]
		if !within(pos.Supplied, onChain.SuppliedCTokens, tolerance) || !within(pos.BorrowPrincipal, onChain.BorrowBalance, tolerance) {
			clean = false
			if r.metrics != nil {
				r.metrics.StateDriftTotal.WithLabelValues("verify").Inc()
			}
			r.log.Warn().Str("addr", addr.String()).Str("market", m.String()).Msg("verify: replica diverged from chain")
		}
	}
	return clean, nil
}

// within reports whether a and b differ by no more than tolerance of the
// larger of the two, treating two zeros as equal.
func within(a, b, tolerance fixedpoint.F) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	diff, saturated := a.SubSaturating(b)
	if diff.IsZero() && !saturated {
		return true
	}
	if saturated {
		diff, _ = b.SubSaturating(a)
	}
	base := fixedpoint.MaxF(a, b)
	if base.IsZero() {
		return diff.IsZero()
	}
	ratio, err := diff.Div(base)
	if err != nil {
		return false
	}
	return !ratio.GreaterThan(tolerance)
}

// Run wraps source with a reconnect-with-backoff loop — the default this
// core picks for the EventSource reconnect policy the interface leaves
// open (§9 open question), mirroring an unbounded-retry subscription
// client: reconnect attempts never give up, only back off. It feeds every
// decoded event through ApplyMarketEvent, serially and in the order
// received, satisfying the per-market ordering requirement of §5. Run
// blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, source chainio.EventSource) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0 // never return backoff.Stop

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connectedAt := time.Now()
		err := r.runOnce(ctx, source)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.metrics != nil {
			r.metrics.EventSourceReconns.Inc()
		}
		if time.Since(connectedAt) > b.MaxInterval {
			b.Reset()
		}
		wait := b.NextBackOff()
		r.log.Warn().Err(err).Dur("backoff", wait).Msg("event source disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Registry) runOnce(ctx context.Context, source chainio.EventSource) error {
	events, errs := source.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return fmt.Errorf("registry: run: event source closed")
			}
			return err
		case evt, ok := <-events:
			if !ok {
				return fmt.Errorf("registry: run: event source closed")
			}
			if err := r.ApplyMarketEvent(ctx, evt); err != nil {
				r.log.Error().Err(err).Str("market", evt.Market.String()).Msg("apply market event failed")
			}
		}
	}
}
