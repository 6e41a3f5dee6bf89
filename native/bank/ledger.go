package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	salestate "fairlaunch/core/state"
)

// DefaultNativeSymbol names the currency bids are paid in.
const DefaultNativeSymbol = "NATIVE"

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrNativeMint          = errors.New("bank: native currency cannot be minted or burned")
)

// Ledger keeps native balances and sale token balances in state. It serves
// as both the custody and the token collaborator of the sale engine.
type Ledger struct {
	mu     sync.Mutex
	state  *salestate.Manager
	native string
}

// NewLedger returns a ledger over manager, registering the native currency
// when it is missing.
func NewLedger(manager *salestate.Manager, nativeSymbol string) (*Ledger, error) {
	if manager == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	native := strings.ToUpper(strings.TrimSpace(nativeSymbol))
	if native == "" {
		native = DefaultNativeSymbol
	}
	l := &Ledger{state: manager, native: native}
	if err := l.EnsureToken(native, "Native currency", 9); err != nil {
		return nil, err
	}
	return l, nil
}

// NativeSymbol returns the symbol of the bid currency.
func (l *Ledger) NativeSymbol() string { return l.native }

// ReservedMint reports whether mint names the native currency, which no sale
// may issue.
func (l *Ledger) ReservedMint(mint string) bool {
	return strings.EqualFold(strings.TrimSpace(mint), l.native)
}

// EnsureToken registers symbol unless it already exists.
func (l *Ledger) EnsureToken(symbol, name string, decimals uint8) error {
	if l.state.TokenExists(symbol) {
		return nil
	}
	if strings.TrimSpace(name) == "" {
		name = strings.ToUpper(strings.TrimSpace(symbol))
	}
	return l.state.RegisterToken(symbol, name, decimals)
}

func toUint64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	wide, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 || !wide.IsUint64() {
		return 0, ErrBalanceOverflow
	}
	return wide.Uint64(), nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrBalanceOverflow
	}
	return sum.Uint64(), nil
}

func (l *Ledger) balance(addr common.Address, symbol string) (uint64, error) {
	amount, err := l.state.Balance(addr.Bytes(), symbol)
	if err != nil {
		return 0, err
	}
	return toUint64(amount)
}

func (l *Ledger) supply(symbol string) (uint64, error) {
	total, err := l.state.TokenSupply(symbol)
	if err != nil {
		return 0, err
	}
	return toUint64(total)
}

func update(addr common.Address, symbol string, amount uint64) salestate.BalanceUpdate {
	return salestate.BalanceUpdate{Addr: addr.Bytes(), Symbol: symbol, Amount: new(big.Int).SetUint64(amount)}
}

// BalanceOf returns the native balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr, l.native)
}

// Transfer moves native funds between accounts.
func (l *Ledger) Transfer(from, to common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(l.native, from, to, amount)
}

func (l *Ledger) move(symbol string, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == to {
		return nil
	}
	fromBal, err := l.balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientBalance
	}
	toBal, err := l.balance(to, symbol)
	if err != nil {
		return err
	}
	credited, err := addChecked(toBal, amount)
	if err != nil {
		return err
	}
	return l.state.SetBalances([]salestate.BalanceUpdate{
		update(from, symbol, fromBal-amount),
		update(to, symbol, credited),
	}, nil)
}

// Credit mints native funds into addr. Operators use it to fund test accounts.
func (l *Ledger) Credit(addr common.Address, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.issue(l.native, addr, amount); err != nil {
		return 0, err
	}
	return l.balance(addr, l.native)
}

func (l *Ledger) issue(symbol string, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	bal, err := l.balance(to, symbol)
	if err != nil {
		return err
	}
	total, err := l.supply(symbol)
	if err != nil {
		return err
	}
	credited, err := addChecked(bal, amount)
	if err != nil {
		return err
	}
	grown, err := addChecked(total, amount)
	if err != nil {
		return err
	}
	return l.state.SetBalances(
		[]salestate.BalanceUpdate{update(to, symbol, credited)},
		map[string]*big.Int{symbol: new(big.Int).SetUint64(grown)},
	)
}

// TotalSupply returns the circulating supply of a sale token.
func (l *Ledger) TotalSupply(mint string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply(mint)
}

// TokenBalance returns the sale token balance of addr.
func (l *Ledger) TokenBalance(mint string, addr common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr, mint)
}

// Mint issues sale tokens, registering the token on first use.
func (l *Ledger) Mint(mint string, to common.Address, amount uint64) error {
	if l.ReservedMint(mint) {
		return ErrNativeMint
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.EnsureToken(mint, "", 0); err != nil {
		return err
	}
	return l.issue(mint, to, amount)
}

// Burn destroys sale tokens held by from.
func (l *Ledger) Burn(mint string, from common.Address, amount uint64) error {
	if l.ReservedMint(mint) {
		return ErrNativeMint
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == 0 {
		return ErrInvalidAmount
	}
	bal, err := l.balance(from, mint)
	if err != nil {
		return err
	}
	if bal < amount {
		return ErrInsufficientBalance
	}
	total, err := l.supply(mint)
	if err != nil {
		return err
	}
	if total < amount {
		return ErrInsufficientBalance
	}
	return l.state.SetBalances(
		[]salestate.BalanceUpdate{update(from, mint, bal-amount)},
		map[string]*big.Int{mint: new(big.Int).SetUint64(total - amount)},
	)
}

// TransferToken moves sale tokens between holders.
func (l *Ledger) TransferToken(mint string, from, to common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(mint, from, to, amount)
}
