package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	splToken "github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	confirm "github.com/gagliardetto/solana-go/rpc/sendAndConfirmTransaction"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// Custody - a logical owner whose token account and signing authority are
// not the owner's associated token account and key (e.g. the pool PDA).
type Custody struct {
	TokenAccount solana.PublicKey
	Authority    solana.PrivateKey
}

// RPCConfig - Solana RPC token service configuration
type RPCConfig struct {
	RPCURL  string
	WSURL   string
	Mint    solana.PublicKey
	Payer   solana.PrivateKey
	Keys    []solana.PrivateKey
	Custody map[solana.PublicKey]Custody
}

// RPC - token service backed by a Solana cluster. Every batch becomes one
// transaction, so the cluster applies it all-or-nothing.
type RPC struct {
	http   *rpc.Client
	ws     *ws.Client
	cfg    RPCConfig
	keys   map[solana.PublicKey]solana.PrivateKey
	logger *zap.Logger

	// exists is swapped in tests
	exists func(ctx context.Context, account solana.PublicKey) (bool, error)
}

// NewRPC connects to the cluster. The websocket connection is optional; without
// it transactions are sent without waiting for confirmation.
func NewRPC(ctx context.Context, cfg RPCConfig, logger *zap.Logger) (*RPC, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Payer) == 0 {
		return nil, fmt.Errorf("fee payer key is required")
	}
	r := &RPC{
		http:   rpc.New(cfg.RPCURL),
		cfg:    cfg,
		keys:   make(map[solana.PublicKey]solana.PrivateKey),
		logger: logger,
	}
	for _, k := range cfg.Keys {
		r.keys[k.PublicKey()] = k
	}
	r.keys[cfg.Payer.PublicKey()] = cfg.Payer
	for _, c := range cfg.Custody {
		r.keys[c.Authority.PublicKey()] = c.Authority
	}
	if cfg.WSURL != "" {
		wsClient, err := ws.Connect(ctx, cfg.WSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect websocket: %w", err)
		}
		r.ws = wsClient
	}
	r.exists = r.accountExists
	return r, nil
}

// Close releases the websocket and idle HTTP connections
func (r *RPC) Close() {
	if r.ws != nil {
		r.ws.Close()
	}
	_ = r.http.Close()
}

// HealthCheck pings the cluster
func (r *RPC) HealthCheck(ctx context.Context) error {
	_, err := r.http.GetHealth(ctx)
	return err
}

// TokenAccount resolves the token account that holds owner's balance
func (r *RPC) TokenAccount(owner solana.PublicKey) (solana.PublicKey, error) {
	if c, ok := r.cfg.Custody[owner]; ok {
		return c.TokenAccount, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, r.cfg.Mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for %s: %w", owner, err)
	}
	return ata, nil
}

// authority returns the key allowed to move owner's tokens
func (r *RPC) authority(owner solana.PublicKey) (solana.PublicKey, error) {
	if c, ok := r.cfg.Custody[owner]; ok {
		return c.Authority.PublicKey(), nil
	}
	if _, ok := r.keys[owner]; ok {
		return owner, nil
	}
	return solana.PublicKey{}, fmt.Errorf("%s: %w", owner, ErrMissingSigner)
}

// BalanceOf returns the raw token amount held by owner. An owner without a
// token account holds 0.
func (r *RPC) BalanceOf(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	account, err := r.TokenAccount(owner)
	if err != nil {
		return 0, err
	}
	res, err := r.http.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if isAccountNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// invalidParams is the JSON-RPC code a node answers with for unknown token accounts
const invalidParams = -32602

func isAccountNotFound(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == invalidParams && strings.Contains(rpcErr.Message, "could not find account")
}

func (r *RPC) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := r.http.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	return info != nil && info.Value != nil, nil
}

// createAccount builds the CreateIdempotent variant of the associated token
// account instruction, which succeeds when the account already exists.
func createAccount(payer, owner, mint solana.PublicKey) solana.Instruction {
	ix := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
	return solana.NewInstruction(ix.ProgramID(), ix.Accounts(), []byte{1})
}

// BuildInstructions converts a batch into SPL token instructions
func (r *RPC) BuildInstructions(ctx context.Context, batch *Batch) ([]solana.Instruction, error) {
	instructions := []solana.Instruction{}
	for i, m := range batch.Movements {
		switch m.Kind {
		case KindOpen:
			if _, ok := r.cfg.Custody[m.To]; ok {
				continue
			}
			account, err := r.TokenAccount(m.To)
			if err != nil {
				return nil, err
			}
			exists, err := r.exists(ctx, account)
			if err != nil {
				return nil, fmt.Errorf("movement %d: %w", i, err)
			}
			if exists {
				continue
			}
			instructions = append(instructions, createAccount(r.cfg.Payer.PublicKey(), m.To, r.cfg.Mint))

		case KindTransfer:
			src, err := r.TokenAccount(m.From)
			if err != nil {
				return nil, err
			}
			dst, err := r.TokenAccount(m.To)
			if err != nil {
				return nil, err
			}
			owner, err := r.authority(m.From)
			if err != nil {
				return nil, fmt.Errorf("movement %d: %w", i, err)
			}
			instructions = append(instructions,
				splToken.NewTransferInstruction(m.Amount, src, dst, owner, nil).Build())

		case KindBurn:
			src, err := r.TokenAccount(m.From)
			if err != nil {
				return nil, err
			}
			owner, err := r.authority(m.From)
			if err != nil {
				return nil, fmt.Errorf("movement %d: %w", i, err)
			}
			instructions = append(instructions,
				splToken.NewBurnInstruction(m.Amount, src, r.cfg.Mint, owner, nil).Build())

		default:
			return nil, fmt.Errorf("movement %d: unknown kind %s", i, m.Kind)
		}
	}
	return instructions, nil
}

// Execute builds, signs and sends the batch as a single transaction
func (r *RPC) Execute(ctx context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	instructions, err := r.BuildInstructions(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to build instructions: %w", err)
	}
	if len(instructions) == 0 {
		return nil
	}

	recent, err := r.http.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(r.cfg.Payer.PublicKey()),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := r.keys[key]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	var sig solana.Signature
	if r.ws != nil {
		sig, err = confirm.SendAndConfirmTransaction(ctx, r.http, r.ws, tx)
	} else {
		sig, err = r.http.SendTransaction(ctx, tx)
	}
	if err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	r.logger.Info("token batch sent",
		zap.String("signature", sig.String()),
		zap.Int("instructions", len(instructions)))
	return nil
}
