package ingestion

import (
	"encoding/json"
	"fmt"

	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/marketevent"
)

// wireEvent is the JSON wire format for every cToken event kind: a single
// envelope carrying only the fields that kind needs, following the
// teacher's per-kind-struct parsing convention but collapsed into one
// envelope since every field here is already flat (no nested union types).
type wireEvent struct {
	Market      uint16 `json:"market"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint32 `json:"log_index"`
	Reverted    bool   `json:"reverted"`

	Minter       string `json:"minter,omitempty"`
	MintTokens   string `json:"mint_tokens,omitempty"`
	Redeemer     string `json:"redeemer,omitempty"`
	RedeemTokens string `json:"redeem_tokens,omitempty"`

	Account           string `json:"account,omitempty"`
	AccountBorrowsNew string `json:"account_borrows_new,omitempty"`
	BorrowIndexNow    string `json:"borrow_index_now,omitempty"`

	Borrower         string `json:"borrower,omitempty"`
	SeizeTokens      string `json:"seize_tokens,omitempty"`
	CTokenCollateral uint16 `json:"ctoken_collateral,omitempty"`

	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount,omitempty"`

	BorrowIndex string `json:"borrow_index,omitempty"`
}

// decode parses a raw JetStream message payload into a typed
// marketevent.Event for the given kind.
func decode(kind marketevent.Kind, data []byte) (marketevent.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return marketevent.Event{}, fmt.Errorf("ingestion: decode %s: %w", kind, err)
	}

	status := marketevent.StatusConfirmed
	if w.Reverted {
		status = marketevent.StatusReverted
	}

	evt := marketevent.Event{
		Market:      domain.MarketId(w.Market),
		Kind:        kind,
		BlockNumber: w.BlockNumber,
		LogIndex:    w.LogIndex,
		Status:      status,
	}

	var err error
	switch kind {
	case marketevent.KindAccrueInterest:
		evt.BorrowIndex, err = parseAmount(w.BorrowIndex)
	case marketevent.KindMint:
		evt.Minter, err = parseAddress(w.Minter)
		if err == nil {
			evt.MintTokens, err = parseAmount(w.MintTokens)
		}
	case marketevent.KindRedeem:
		evt.Redeemer, err = parseAddress(w.Redeemer)
		if err == nil {
			evt.RedeemTokens, err = parseAmount(w.RedeemTokens)
		}
	case marketevent.KindBorrow, marketevent.KindRepayBorrow:
		evt.Account, err = parseAddress(w.Account)
		if err == nil {
			evt.AccountBorrowsNew, err = parseAmount(w.AccountBorrowsNew)
		}
		if err == nil {
			evt.BorrowIndexNow, err = parseAmount(w.BorrowIndexNow)
		}
	case marketevent.KindLiquidateBorrow:
		evt.Borrower, err = parseAddress(w.Borrower)
		if err == nil {
			evt.SeizeTokens, err = parseAmount(w.SeizeTokens)
		}
		evt.CTokenCollateral = domain.MarketId(w.CTokenCollateral)
	case marketevent.KindTransfer:
		evt.From, err = parseAddress(w.From)
		if err == nil {
			evt.To, err = parseAddress(w.To)
		}
		if err == nil {
			evt.Amount, err = parseAmount(w.Amount)
		}
	default:
		return marketevent.Event{}, fmt.Errorf("ingestion: unknown event kind %s", kind)
	}
	if err != nil {
		return marketevent.Event{}, fmt.Errorf("ingestion: decode %s: %w", kind, err)
	}
	return evt, nil
}

func parseAddress(s string) (domain.Address, error) {
	if s == "" {
		return domain.ZeroAddress, nil
	}
	return domain.ParseAddress(s)
}

func parseAmount(s string) (fixedpoint.F, error) {
	if s == "" {
		return fixedpoint.Zero, nil
	}
	return fixedpoint.FromString(s)
}
