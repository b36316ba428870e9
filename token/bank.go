package token

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"
	"github.com/sasha-s/go-deadlock"
)

// Bank - in-memory token service. Used by tests and dry-run deployments.
type Bank struct {
	mu       *deadlock.Mutex
	balances map[solana.PublicKey]uint64
	open     map[solana.PublicKey]bool
	burned   uint64

	// FailOn makes Execute reject any movement touching this owner
	FailOn *solana.PublicKey
}

// NewBank creates an empty bank
func NewBank() *Bank {
	return &Bank{
		mu:       &deadlock.Mutex{},
		balances: make(map[solana.PublicKey]uint64),
		open:     make(map[solana.PublicKey]bool),
	}
}

// Mint credits owner out of thin air and opens the account
func (b *Bank) Mint(owner solana.PublicKey, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open[owner] = true
	b.balances[owner] += amount
}

// BalanceOf returns the balance of owner. Unopened accounts hold 0.
func (b *Bank) BalanceOf(_ context.Context, owner solana.PublicKey) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[owner], nil
}

// IsOpen reports whether owner has a token account
func (b *Bank) IsOpen(owner solana.PublicKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[owner]
}

// Burned returns the total amount burned so far
func (b *Bank) Burned() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.burned
}

// Execute applies the batch on a copy and commits only if every movement succeeds
func (b *Bank) Execute(_ context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	balances := make(map[solana.PublicKey]uint64, len(b.balances))
	for k, v := range b.balances {
		balances[k] = v
	}
	open := make(map[solana.PublicKey]bool, len(b.open))
	for k, v := range b.open {
		open[k] = v
	}
	burned := b.burned

	for i, m := range batch.Movements {
		if b.FailOn != nil && (m.From.Equals(*b.FailOn) || m.To.Equals(*b.FailOn)) {
			return fmt.Errorf("movement %d (%s): rejected for %s", i, m.Kind, b.FailOn.String())
		}
		switch m.Kind {
		case KindOpen:
			open[m.To] = true
		case KindTransfer:
			if !open[m.From] {
				return fmt.Errorf("movement %d: source %s: %w", i, m.From, ErrAccountNotFound)
			}
			if !open[m.To] {
				return fmt.Errorf("movement %d: destination %s: %w", i, m.To, ErrAccountNotFound)
			}
			from, underflow := math.SafeSub(balances[m.From], m.Amount)
			if underflow {
				return fmt.Errorf("movement %d: %s holds %d, needs %d: %w", i, m.From, balances[m.From], m.Amount, ErrInsufficientFunds)
			}
			balances[m.From] = from
			to, overflow := math.SafeAdd(balances[m.To], m.Amount)
			if overflow {
				return fmt.Errorf("movement %d: destination balance overflow", i)
			}
			balances[m.To] = to
		case KindBurn:
			if balances[m.From] < m.Amount {
				return fmt.Errorf("movement %d: burn %d from %s: %w", i, m.Amount, m.From, ErrInsufficientFunds)
			}
			balances[m.From] -= m.Amount
			burned += m.Amount
		default:
			return fmt.Errorf("movement %d: unknown kind %s", i, m.Kind)
		}
	}

	b.balances = balances
	b.open = open
	b.burned = burned
	return nil
}
