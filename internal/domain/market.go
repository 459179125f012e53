package domain

import "fmt"

// MarketId identifies a supported cToken market. Markets are drawn from a
// fixed enumeration known at config time; MarketId is treated as an opaque
// index, not a contract address, matching the reference protocol's
// convention of addressing markets by symbol (cETH, cDAI, ...) rather than
// by their raw on-chain address in application code.
type MarketId uint16

// String renders the market id numerically. Callers that need the symbol
// (cETH, cDAI, ...) go through MarketRegistry, which is the sole owner of
// that mapping.
func (m MarketId) String() string {
	return fmt.Sprintf("market#%d", uint16(m))
}
