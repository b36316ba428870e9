package token

import (
	"context"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = solana.PublicKey{1}
	bob   = solana.PublicKey{2}
	carol = solana.PublicKey{3}
)

func TestBatchBuilder(t *testing.T) {
	b := (&Batch{}).Open(bob).Open(bob).Transfer(alice, bob, 0).Transfer(alice, bob, 5).Burn(alice, 0).Burn(alice, 1)
	require.Len(t, b.Movements, 3)
	assert.Equal(t, KindOpen, b.Movements[0].Kind)
	assert.Equal(t, KindTransfer, b.Movements[1].Kind)
	assert.Equal(t, KindBurn, b.Movements[2].Kind)
	assert.False(t, b.Empty())
	assert.True(t, (&Batch{}).Empty())
	assert.True(t, (*Batch)(nil).Empty())
	assert.Equal(t, "burn", KindBurn.String())
}

func TestBankExecute(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(alice, 100)

	err := bank.Execute(ctx, (&Batch{}).Open(bob).Transfer(alice, bob, 60).Burn(alice, 10))
	require.NoError(t, err)

	got, _ := bank.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(30), got)
	got, _ = bank.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(60), got)
	assert.Equal(t, uint64(10), bank.Burned())
	assert.True(t, bank.IsOpen(bob))
}

func TestBankExecuteIsAtomic(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		batch *Batch
		err   error
	}{
		{
			name:  "insufficient funds",
			batch: (&Batch{}).Open(bob).Transfer(alice, bob, 60).Transfer(alice, bob, 60),
			err:   ErrInsufficientFunds,
		},
		{
			name:  "destination not open",
			batch: (&Batch{}).Transfer(alice, carol, 10),
			err:   ErrAccountNotFound,
		},
		{
			name:  "burn too much",
			batch: (&Batch{}).Open(bob).Transfer(alice, bob, 10).Burn(alice, 1_000),
			err:   ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := NewBank()
			bank.Mint(alice, 100)

			err := bank.Execute(ctx, tt.batch)
			assert.ErrorIs(t, err, tt.err)

			got, _ := bank.BalanceOf(ctx, alice)
			assert.Equal(t, uint64(100), got)
			got, _ = bank.BalanceOf(ctx, bob)
			assert.Zero(t, got)
			assert.False(t, bank.IsOpen(bob))
			assert.Zero(t, bank.Burned())
		})
	}
}

func TestBankFailOn(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(alice, 100)
	bank.FailOn = &carol

	err := bank.Execute(ctx, (&Batch{}).Open(bob).Transfer(alice, bob, 10).Open(carol).Transfer(alice, carol, 10))
	require.Error(t, err)
	got, _ := bank.BalanceOf(ctx, bob)
	assert.Zero(t, got)

	bank.FailOn = nil
	require.NoError(t, bank.Execute(ctx, (&Batch{}).Open(carol).Transfer(alice, carol, 10)))
	require.NoError(t, bank.Execute(ctx, nil))
}

func TestBankConcurrentUse(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	bank.Mint(alice, 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bank.Execute(ctx, (&Batch{}).Open(bob).Transfer(alice, bob, 10)))
			bank.Mint(carol, 1)
		}()
	}
	wg.Wait()

	bal, err := bank.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)
	bal, err = bank.BalanceOf(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), bal)
}
