package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRPC(t *testing.T, existing ...solana.PublicKey) (*RPC, solana.PrivateKey, solana.PublicKey) {
	t.Helper()
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	poolAuthority, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	pool := solana.PublicKey{42}
	r, err := NewRPC(context.Background(), RPCConfig{
		RPCURL: "http://127.0.0.1:8899",
		Mint:   solana.PublicKey{7},
		Payer:  payer,
		Custody: map[solana.PublicKey]Custody{
			pool: {TokenAccount: solana.PublicKey{43}, Authority: poolAuthority},
		},
	}, nil)
	require.NoError(t, err)

	known := map[solana.PublicKey]bool{}
	for _, k := range existing {
		known[k] = true
	}
	r.exists = func(_ context.Context, account solana.PublicKey) (bool, error) {
		return known[account], nil
	}
	return r, payer, pool
}

func TestNewRPCRequiresPayer(t *testing.T) {
	_, err := NewRPC(context.Background(), RPCConfig{RPCURL: "http://127.0.0.1:8899"}, nil)
	assert.Error(t, err)
}

func TestRPCTokenAccount(t *testing.T) {
	r, payer, pool := newTestRPC(t)

	acct, err := r.TokenAccount(pool)
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKey{43}, acct)

	acct, err = r.TokenAccount(payer.PublicKey())
	require.NoError(t, err)
	ata, _, err := solana.FindAssociatedTokenAddress(payer.PublicKey(), solana.PublicKey{7})
	require.NoError(t, err)
	assert.Equal(t, ata, acct)
}

func TestRPCBuildInstructions(t *testing.T) {
	ctx := context.Background()
	investor := solana.PublicKey{9}
	r, payer, pool := newTestRPC(t)

	batch := (&Batch{}).
		Open(pool).
		Open(investor).
		Transfer(pool, investor, 100).
		Transfer(payer.PublicKey(), pool, 50).
		Burn(payer.PublicKey(), 5)

	ixs, err := r.BuildInstructions(ctx, batch)
	require.NoError(t, err)
	// custody accounts are never created
	require.Len(t, ixs, 4)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ixs[0].ProgramID())
	data, err := ixs[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data, "account creation must be idempotent")
	require.Len(t, ixs[0].Accounts(), 6)
	for _, ix := range ixs[1:] {
		assert.Equal(t, solana.TokenProgramID, ix.ProgramID())
	}

	// the pool transfer is signed by its custody authority
	poolAuthority := r.cfg.Custody[pool].Authority.PublicKey()
	signed := false
	for _, meta := range ixs[1].Accounts() {
		if meta.IsSigner && meta.PublicKey.Equals(poolAuthority) {
			signed = true
		}
	}
	assert.True(t, signed)

	t.Run("existing account is not recreated", func(t *testing.T) {
		ata, err := r.TokenAccount(investor)
		require.NoError(t, err)
		r2, _, _ := newTestRPC(t, ata)
		r2.cfg.Custody = r.cfg.Custody
		ixs, err := r2.BuildInstructions(ctx, (&Batch{}).Open(investor))
		require.NoError(t, err)
		assert.Empty(t, ixs)
	})

	t.Run("missing signer", func(t *testing.T) {
		_, err := r.BuildInstructions(ctx, (&Batch{}).Transfer(investor, pool, 1))
		assert.ErrorIs(t, err, ErrMissingSigner)
	})

	t.Run("empty batch executes nothing", func(t *testing.T) {
		assert.NoError(t, r.Execute(ctx, &Batch{}))
	})
}

// nodeReply answers a single JSON-RPC method call
type nodeReply func(method string) (interface{}, *jsonrpc.RPCError)

// newNode starts an HTTP JSON-RPC endpoint and an RPC client pointed at it
func newNode(t *testing.T, reply nodeReply) *RPC {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, rpcErr := reply(req.Method)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "close")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	r, err := NewRPC(context.Background(), RPCConfig{RPCURL: srv.URL, Mint: solana.PublicKey{7}, Payer: payer}, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRPCBalanceOf(t *testing.T) {
	ctx := context.Background()
	owner := solana.PublicKey{9}

	t.Run("existing account", func(t *testing.T) {
		r := newNode(t, func(method string) (interface{}, *jsonrpc.RPCError) {
			assert.Equal(t, "getTokenAccountBalance", method)
			return map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value":   map[string]interface{}{"amount": "1500", "decimals": 6, "uiAmountString": "0.0015"},
			}, nil
		})
		bal, err := r.BalanceOf(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(1500), bal)
	})

	t.Run("missing account holds zero", func(t *testing.T) {
		r := newNode(t, func(string) (interface{}, *jsonrpc.RPCError) {
			return nil, &jsonrpc.RPCError{Code: -32602, Message: "Invalid param: could not find account"}
		})
		bal, err := r.BalanceOf(ctx, owner)
		require.NoError(t, err)
		assert.Zero(t, bal)

		bank := NewBank()
		bankBal, err := bank.BalanceOf(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, bankBal, bal)
	})

	t.Run("node failure is returned", func(t *testing.T) {
		r := newNode(t, func(string) (interface{}, *jsonrpc.RPCError) {
			return nil, &jsonrpc.RPCError{Code: -32603, Message: "internal error"}
		})
		_, err := r.BalanceOf(ctx, owner)
		assert.Error(t, err)
	})
}

func TestRPCAccountExists(t *testing.T) {
	ctx := context.Background()
	investor := solana.PublicKey{9}

	t.Run("missing account is created", func(t *testing.T) {
		r := newNode(t, func(method string) (interface{}, *jsonrpc.RPCError) {
			assert.Equal(t, "getAccountInfo", method)
			return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": nil}, nil
		})
		ixs, err := r.BuildInstructions(ctx, (&Batch{}).Open(investor))
		require.NoError(t, err)
		require.Len(t, ixs, 1)
		assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ixs[0].ProgramID())
	})

	t.Run("lookup failure aborts the batch", func(t *testing.T) {
		r := newNode(t, func(string) (interface{}, *jsonrpc.RPCError) {
			return nil, &jsonrpc.RPCError{Code: -32603, Message: "internal error"}
		})
		_, err := r.BuildInstructions(ctx, (&Batch{}).Open(investor))
		assert.Error(t, err)
	})
}
