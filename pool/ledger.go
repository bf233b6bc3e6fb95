package pool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-memory TokenBackend with standard, non-rebasing
// semantics. It backs tests and the simulator CLI; production hosts plug
// in their own TokenBackend.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// MintTo credits amount to addr out of thin air.
func (l *Ledger) MintTo(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[addr]
	if !ok {
		bal = new(big.Int)
		l.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

// BalanceOf returns a copy of addr's balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrInsufficientBalance)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: transfer of %s from %s", ErrInsufficientBalance, amount, from.Hex())
	}
	fromBal.Sub(fromBal, amount)

	toBal, ok := l.balances[to]
	if !ok {
		toBal = new(big.Int)
		l.balances[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}
