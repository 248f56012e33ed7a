package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// Token is the single-asset balance ledger the escrow settles in. The escrow
// is asset-agnostic beyond this interface.
type Token interface {
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
}

// BankToken is an in-memory ERC-20 style balance map. It backs local
// deployments and tests; production wires the real asset contract behind the
// same interface.
type BankToken struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewBankToken() *BankToken {
	return &BankToken{balances: make(map[common.Address]*big.Int)}
}

// Mint credits amount to addr.
func (t *BankToken) Mint(addr common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(addr, amount)
}

func (t *BankToken) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	balance, ok := t.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	t.credit(to, amount)
	return nil
}

func (t *BankToken) BalanceOf(addr common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, ok := t.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// credit assumes the lock is held.
func (t *BankToken) credit(addr common.Address, amount *big.Int) {
	balance, ok := t.balances[addr]
	if !ok {
		balance = big.NewInt(0)
		t.balances[addr] = balance
	}
	balance.Add(balance, amount)
}
