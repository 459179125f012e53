package apply

import (
	"fmt"

	"LiquidCore/internal/marketevent"
)

// ReorgDetected signals that a previously delivered event has been
// invalidated by a chain reorganization (§7). Apply returns it rather than
// mutating state for a reverted event; ApplyWithRecovery consumes it to
// drive refetch-based recovery.
type ReorgDetected struct {
	Event marketevent.Event
}

func (e *ReorgDetected) Error() string {
	return fmt.Sprintf("apply: reorg detected at block %d market %s", e.Event.BlockNumber, e.Event.Market)
}
