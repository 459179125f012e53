// Package domain holds the primitive identifiers shared across LiquidCore:
// account addresses and market identifiers.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte EVM account identifier. Equality and hashing are
// case-insensitive over the hex representation; every Address in LiquidCore
// is canonicalized to lowercase hex on ingress (NewAddressFromBytes / ParseAddress),
// so downstream code can compare Addresses with == and use them directly as
// map keys.
type Address struct {
	addr common.Address
}

// ZeroAddress is the EVM null address, used as the cToken-contract sentinel
// in paired Mint/Redeem Transfer events (§4.4).
var ZeroAddress = Address{}

// ParseAddress canonicalizes a hex string (with or without 0x prefix,
// checksummed or not) into an Address.
func ParseAddress(hex string) (Address, error) {
	if !common.IsHexAddress(hex) {
		return Address{}, fmt.Errorf("domain: %q is not a valid address", hex)
	}
	return Address{addr: common.HexToAddress(hex)}, nil
}

// MustParseAddress is ParseAddress but panics on error; for fixtures.
func MustParseAddress(hex string) Address {
	a, err := ParseAddress(hex)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAddressFromBytes builds an Address from a raw 20-byte slice.
func NewAddressFromBytes(b []byte) Address {
	return Address{addr: common.BytesToAddress(b)}
}

// IsZero reports whether this is the EVM null address.
func (a Address) IsZero() bool {
	return a.addr == common.Address{}
}

// String renders the canonical lowercase hex form, e.g.
// "0x0000000000000000000000000000000000000000". Deliberately not
// EIP-55-checksummed: the spec requires case-insensitive canonicalization,
// and a single lowercase form is the simplest thing that satisfies it.
func (a Address) String() string {
	b := a.addr.Bytes()
	return fmt.Sprintf("0x%x", b)
}

// Bytes returns the raw 20-byte form.
func (a Address) Bytes() []byte {
	return a.addr.Bytes()
}

// MarshalJSON renders the canonical lowercase hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses a hex string into an Address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
