// Package apply implements EventApplier: it dispatches decoded market
// events onto BorrowerState and BorrowIndexTable, filtered by the watched
// address set, deduplicating the Transfer events paired with Mint/Redeem,
// and recovering from reorgs by refetching affected accounts.
package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"LiquidCore/internal/borrower"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/marketevent"
	"LiquidCore/internal/observability"
)

// Store is the subset of BorrowerRegistry the applier needs. It is defined
// locally, mirroring the teacher's MarginCalculator pattern of taking a
// narrow local interface instead of importing the registry package
// directly, which would create an import cycle (registry depends on apply).
type Store interface {
	IsWatched(addr domain.Address) bool
	StateFor(addr domain.Address) (*borrower.State, bool)
	IndexTable() *borrower.IndexTable
	RefetchBorrower(ctx context.Context, addr domain.Address) error
}

// cursor tracks the last applied (block, logIndex) per market so that
// confirmed events are only applied in strictly increasing order (§4.4,
// §5). Reverted events bypass the cursor check — they are always processed
// as reorg recovery triggers.
type cursor struct {
	block    uint64
	logIndex uint32
	seen     bool
}

func (c cursor) lessOrEqual(block uint64, logIndex uint32) bool {
	if !c.seen {
		return false
	}
	if block != c.block {
		return block < c.block
	}
	return logIndex <= c.logIndex
}

// EventApplier is the single dispatching routine translating a raw market
// event stream into BorrowerState/IndexTable mutations.
type EventApplier struct {
	store   Store
	log     zerolog.Logger
	metrics *observability.Metrics

	cursors map[domain.MarketId]cursor
}

// NewEventApplier constructs an applier bound to store.
func NewEventApplier(store Store, log zerolog.Logger, metrics *observability.Metrics) *EventApplier {
	return &EventApplier{
		store:   store,
		log:     log,
		metrics: metrics,
		cursors: make(map[domain.MarketId]cursor),
	}
}

// Apply processes a single decoded event. It never suspends: all
// collaborator I/O (refetch on reorg) is done by the caller reacting to the
// returned error, keeping arithmetic paths non-suspending per §5. Callers
// that want the applier to drive its own reorg recovery should use
// ApplyWithRecovery instead.
func (a *EventApplier) Apply(evt marketevent.Event) error {
	if evt.Status == marketevent.StatusReverted {
		return &ReorgDetected{Event: evt}
	}

	c := a.cursors[evt.Market]
	if c.lessOrEqual(evt.BlockNumber, evt.LogIndex) {
		a.reject(evt, "out_of_order")
		return nil
	}

	start := time.Now()
	err := a.dispatch(evt)
	if a.metrics != nil {
		a.metrics.EventApplyDur.WithLabelValues(evt.Kind.String()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}

	a.cursors[evt.Market] = cursor{block: evt.BlockNumber, logIndex: evt.LogIndex, seen: true}
	if a.metrics != nil {
		a.metrics.EventsApplied.WithLabelValues(evt.Kind.String()).Inc()
	}
	return nil
}

// ApplyWithRecovery applies evt and, if it is a reverted event (a reorg
// signal), performs recovery by refetching the affected account(s) from
// ChainReader via Store.RefetchBorrower — the "full refetch" strategy
// permitted by §4.4 as an alternative to local inversion.
func (a *EventApplier) ApplyWithRecovery(ctx context.Context, evt marketevent.Event) error {
	err := a.Apply(evt)
	var reorg *ReorgDetected
	if !isReorg(err, &reorg) {
		return err
	}

	if a.metrics != nil {
		a.metrics.ReorgsHandled.Inc()
	}
	for _, addr := range affectedAddresses(evt) {
		if !a.store.IsWatched(addr) {
			continue
		}
		if err := a.store.RefetchBorrower(ctx, addr); err != nil {
			return fmt.Errorf("apply: reorg recovery for %s: %w", addr, err)
		}
	}
	// A reverted event's own market cursor must be rolled back so a later
	// confirmed replacement at the same or an earlier position is accepted.
	delete(a.cursors, evt.Market)
	a.log.Warn().Str("market", evt.Market.String()).Uint64("block", evt.BlockNumber).Msg("reorg recovered by refetch")
	return nil
}

func isReorg(err error, target **ReorgDetected) bool {
	r, ok := err.(*ReorgDetected)
	if ok {
		*target = r
	}
	return ok
}

func affectedAddresses(evt marketevent.Event) []domain.Address {
	switch evt.Kind {
	case marketevent.KindMint:
		return []domain.Address{evt.Minter}
	case marketevent.KindRedeem:
		return []domain.Address{evt.Redeemer}
	case marketevent.KindBorrow, marketevent.KindRepayBorrow:
		return []domain.Address{evt.Account}
	case marketevent.KindLiquidateBorrow:
		return []domain.Address{evt.Borrower}
	case marketevent.KindTransfer:
		return []domain.Address{evt.From, evt.To}
	default:
		return nil
	}
}

func (a *EventApplier) reject(evt marketevent.Event, reason string) {
	if a.metrics != nil {
		a.metrics.EventsRejected.WithLabelValues(evt.Kind.String(), reason).Inc()
	}
	a.log.Debug().Str("kind", evt.Kind.String()).Str("reason", reason).Msg("event rejected")
}

func (a *EventApplier) dispatch(evt marketevent.Event) error {
	switch evt.Kind {
	case marketevent.KindAccrueInterest:
		return a.handleAccrueInterest(evt)
	case marketevent.KindMint:
		return a.handleMint(evt)
	case marketevent.KindRedeem:
		return a.handleRedeem(evt)
	case marketevent.KindBorrow:
		return a.handleBorrow(evt)
	case marketevent.KindRepayBorrow:
		return a.handleRepayBorrow(evt)
	case marketevent.KindLiquidateBorrow:
		return a.handleLiquidateBorrow(evt)
	case marketevent.KindTransfer:
		return a.handleTransfer(evt)
	default:
		return fmt.Errorf("apply: unknown event kind: %v", evt.Kind)
	}
}

func (a *EventApplier) handleAccrueInterest(evt marketevent.Event) error {
	table := a.store.IndexTable()
	current, err := table.Get(evt.Market)
	if err == nil && evt.BorrowIndex.LessThan(current) {
		a.reject(evt, "index_regression")
		a.log.Warn().Str("market", evt.Market.String()).Str("new", evt.BorrowIndex.String()).Str("current", current.String()).Msg("rejected non-monotonic borrow index")
		return nil
	}
	table.Set(evt.Market, evt.BorrowIndex)
	return nil
}

func (a *EventApplier) handleMint(evt marketevent.Event) error {
	if !a.store.IsWatched(evt.Minter) {
		a.reject(evt, "unwatched")
		return nil
	}
	st, _ := a.store.StateFor(evt.Minter)
	st.Mint(evt.Market, evt.MintTokens, evt.BlockNumber)
	return nil
}

func (a *EventApplier) handleRedeem(evt marketevent.Event) error {
	if !a.store.IsWatched(evt.Redeemer) {
		a.reject(evt, "unwatched")
		return nil
	}
	st, _ := a.store.StateFor(evt.Redeemer)
	if drifted := st.Redeem(evt.Market, evt.RedeemTokens, evt.BlockNumber); drifted {
		a.recordDrift(evt)
	}
	return nil
}

func (a *EventApplier) handleBorrow(evt marketevent.Event) error {
	if !a.store.IsWatched(evt.Account) {
		a.reject(evt, "unwatched")
		return nil
	}
	st, _ := a.store.StateFor(evt.Account)
	st.Borrow(evt.Market, evt.AccountBorrowsNew, evt.BorrowIndexNow, evt.BlockNumber)
	return nil
}

func (a *EventApplier) handleRepayBorrow(evt marketevent.Event) error {
	if !a.store.IsWatched(evt.Account) {
		a.reject(evt, "unwatched")
		return nil
	}
	st, _ := a.store.StateFor(evt.Account)
	st.RepayBorrow(evt.Market, evt.AccountBorrowsNew, evt.BorrowIndexNow, evt.BlockNumber)
	return nil
}

func (a *EventApplier) handleLiquidateBorrow(evt marketevent.Event) error {
	if !a.store.IsWatched(evt.Borrower) {
		a.reject(evt, "unwatched")
		return nil
	}
	st, _ := a.store.StateFor(evt.Borrower)
	if drifted := st.LiquidateBorrow(evt.CTokenCollateral, evt.SeizeTokens, evt.BlockNumber); drifted {
		a.recordDrift(evt)
	}
	return nil
}

// handleTransfer implements the Mint/Redeem Transfer-dedup rule from §4.4:
// a Transfer whose from or to is the zero address is the on-chain leg of a
// Mint (0x0 -> minter) or Redeem (redeemer -> 0x0) already applied by its
// own handler, and must be ignored here to avoid double counting.
func (a *EventApplier) handleTransfer(evt marketevent.Event) error {
	if evt.From.IsZero() || evt.To.IsZero() {
		a.reject(evt, "mint_redeem_paired_transfer")
		return nil
	}

	fromWatched := a.store.IsWatched(evt.From)
	toWatched := a.store.IsWatched(evt.To)
	if !fromWatched && !toWatched {
		a.reject(evt, "unwatched")
		return nil
	}

	if fromWatched {
		st, _ := a.store.StateFor(evt.From)
		if drifted := st.TransferOut(evt.Market, evt.Amount, evt.BlockNumber); drifted {
			a.recordDrift(evt)
		}
	}
	if toWatched {
		st, _ := a.store.StateFor(evt.To)
		st.TransferIn(evt.Market, evt.Amount, evt.BlockNumber)
	}
	return nil
}

func (a *EventApplier) recordDrift(evt marketevent.Event) {
	if a.metrics != nil {
		a.metrics.StateDriftTotal.WithLabelValues(evt.Kind.String()).Inc()
	}
	a.log.Warn().Str("kind", evt.Kind.String()).Str("market", evt.Market.String()).Msg("state drift: saturated to zero")
}
