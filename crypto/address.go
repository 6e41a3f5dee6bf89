package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the human-readable part of a bech32 account string.
type AddressPrefix string

// AccountPrefix is used for every account rendered by fair launch tooling.
const AccountPrefix AddressPrefix = "fl"

// Address is a 20-byte account tagged with its bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  common.Address
}

// NewAddress wraps raw account bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != common.AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", common.AddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: common.BytesToAddress(b)}, nil
}

// FromCommon renders an account with the default prefix.
func FromCommon(addr common.Address) Address {
	return Address{prefix: AccountPrefix, bytes: addr}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes.Bytes(), 8, 5, true)
	if err != nil {
		return a.bytes.Hex()
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		return a.bytes.Hex()
	}
	return encoded
}

func (a Address) Bytes() []byte { return a.bytes.Bytes() }

// Common returns the go-ethereum representation used by the ledger.
func (a Address) Common() common.Address { return a.bytes }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAccount accepts either a 0x-prefixed hex address or a bech32 string
// carrying AccountPrefix.
func ParseAccount(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("account required")
	}
	if common.IsHexAddress(trimmed) {
		return common.HexToAddress(trimmed), nil
	}
	addr, err := DecodeAddress(strings.ToLower(trimmed))
	if err != nil {
		return common.Address{}, err
	}
	if addr.Prefix() != AccountPrefix {
		return common.Address{}, fmt.Errorf("unexpected account prefix %q", addr.Prefix())
	}
	return addr.Common(), nil
}
