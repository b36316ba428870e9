// Package token holds the token balance/transfer services the vesting ledger
// moves funds through. A Batch is executed all-or-nothing.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("token account not found")
	ErrMissingSigner     = errors.New("no signer for account owner")
)

// Kind - movement type
type Kind uint8

const (
	KindOpen Kind = iota
	KindTransfer
	KindBurn
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindTransfer:
		return "transfer"
	case KindBurn:
		return "burn"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Movement - one step of a batch. Accounts are identified by their owner;
// services resolve the concrete token account.
type Movement struct {
	Kind   Kind
	From   solana.PublicKey // transfer source / burn source
	To     solana.PublicKey // transfer destination / account to open
	Amount uint64
}

// Batch - ordered movements applied atomically
type Batch struct {
	Movements []Movement
}

// Open asks the service to create a token account for owner if missing
func (b *Batch) Open(owner solana.PublicKey) *Batch {
	for _, m := range b.Movements {
		if m.Kind == KindOpen && m.To.Equals(owner) {
			return b
		}
	}
	b.Movements = append(b.Movements, Movement{Kind: KindOpen, To: owner})
	return b
}

// Transfer moves amount between two owners. Zero amounts are dropped.
func (b *Batch) Transfer(from, to solana.PublicKey, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.Movements = append(b.Movements, Movement{Kind: KindTransfer, From: from, To: to, Amount: amount})
	return b
}

// Burn destroys amount held by from. Zero amounts are dropped.
func (b *Batch) Burn(from solana.PublicKey, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.Movements = append(b.Movements, Movement{Kind: KindBurn, From: from, Amount: amount})
	return b
}

// Empty reports whether there is nothing to execute
func (b *Batch) Empty() bool {
	return b == nil || len(b.Movements) == 0
}

// Service - external token balance/transfer service
type Service interface {
	BalanceOf(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Execute(ctx context.Context, batch *Batch) error
}
