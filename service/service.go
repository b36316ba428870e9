// Package service hosts the single lock pool state. It serializes every
// operation, persists the result and keeps an operation history.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"hotwings/store"
	"hotwings/vesting"
)

// Result - outcome of an accepted operation
type Result struct {
	OperationID string           `json:"operation_id"`
	Receipt     *vesting.Receipt `json:"receipt"`
}

// OperationError - a rejected operation, carrying its history id
type OperationError struct {
	OperationID string
	Err         error
}

func (e *OperationError) Error() string { return e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }

// Service - mutex guarded ledger host
type Service struct {
	mu     *deadlock.Mutex
	st     *vesting.LedgerState
	ledger *vesting.Ledger
	proc   *vesting.Processor
	repo   *store.Repository
	logger *zap.Logger
}

// New loads the persisted state, or starts empty. repo may be nil.
func New(ctx context.Context, ledger *vesting.Ledger, hook *vesting.TaxHook, repo *store.Repository, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st := vesting.NewLedgerState()
	if repo != nil {
		loaded, err := repo.Load(ctx, ledger.Config().ProgramID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			if err := vesting.Reconcile(loaded); err != nil {
				return nil, fmt.Errorf("stored ledger: %w", err)
			}
			st = loaded
		}
	}
	logger.Info("ledger loaded",
		zap.Stringer("pool", ledger.Pool()),
		zap.Bool("initialized", st.Initialized()),
		zap.Int("investors", len(st.Entries)),
		zap.Uint8("milestone", st.CurrentMilestone))
	return &Service{
		mu:     &deadlock.Mutex{},
		st:     st,
		ledger: ledger,
		proc:   &vesting.Processor{Ledger: ledger, Hook: hook},
		repo:   repo,
		logger: logger,
	}, nil
}

// Ledger returns the wrapped ledger
func (s *Service) Ledger() *vesting.Ledger { return s.ledger }

// State returns a snapshot of the current state
func (s *Service) State() *vesting.LedgerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// History returns recorded operations, newest first
func (s *Service) History(ctx context.Context, wallet string, limit int) ([]store.OperationHistory, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("database not configured")
	}
	return s.repo.History(ctx, wallet, limit)
}

type opInfo struct {
	name      string
	authority solana.PublicKey
	wallet    solana.PublicKey
	amount    uint64
}

func (s *Service) run(ctx context.Context, op opInfo, fn func(st *vesting.LedgerState) (*vesting.Receipt, error)) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	fields := []zap.Field{
		zap.String("op", op.name),
		zap.String("operation_id", id),
		zap.Stringer("authority", op.authority),
	}
	if !op.wallet.IsZero() {
		fields = append(fields, zap.Stringer("wallet", op.wallet))
	}
	if op.amount > 0 {
		fields = append(fields, zap.Uint64("amount", op.amount))
	}

	receipt, err := fn(s.st)
	if err != nil {
		s.logger.Warn("operation rejected", append(fields, zap.Error(err))...)
		s.record(ctx, id, op, nil, store.StatusRejected, err)
		return nil, &OperationError{OperationID: id, Err: err}
	}

	if err := vesting.Reconcile(s.st); err != nil {
		s.logger.Error("ledger inconsistent after operation", append(fields, zap.Error(err))...)
		s.record(ctx, id, op, receipt, store.StatusUnsaved, err)
		return nil, &OperationError{OperationID: id, Err: err}
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, s.ledger.Config().ProgramID, s.ledger.Pool(), s.st); err != nil {
			s.logger.Error("failed to persist ledger", append(fields, zap.Error(err))...)
			s.record(ctx, id, op, receipt, store.StatusUnsaved, err)
			return nil, &OperationError{OperationID: id, Err: err}
		}
	}
	s.record(ctx, id, op, receipt, store.StatusSuccess, nil)

	s.logger.Info("operation applied", append(fields,
		zap.Uint64("unlocked", receipt.Unlocked),
		zap.Uint64("locked", receipt.Locked),
		zap.Uint8("milestone", receipt.Milestone),
		zap.Int("transfers", receipt.Transfers))...)
	return &Result{OperationID: id, Receipt: receipt}, nil
}

func (s *Service) record(ctx context.Context, id string, op opInfo, receipt *vesting.Receipt, status string, opErr error) {
	if s.repo == nil {
		return
	}
	h := &store.OperationHistory{
		OperationID: id,
		ProgramID:   s.ledger.Config().ProgramID.String(),
		Operation:   op.name,
		Authority:   op.authority.String(),
		Amount:      store.Amount(op.amount),
		Status:      status,
	}
	if !op.wallet.IsZero() {
		h.Wallet = op.wallet.String()
	}
	if receipt != nil {
		h.Unlocked = store.Amount(receipt.Unlocked)
		h.Locked = store.Amount(receipt.Locked)
		h.Milestone = receipt.Milestone
	}
	if opErr != nil {
		h.ErrorCode = vesting.CodeOf(opErr)
		h.ErrorMessage = opErr.Error()
	}
	if err := s.repo.Record(ctx, h); err != nil {
		s.logger.Error("failed to record operation", zap.String("operation_id", id), zap.Error(err))
	}
}

// Initialize seeds the pool with presale allocations
func (s *Service) Initialize(ctx context.Context, authority solana.PublicKey, allocations []vesting.Allocation) (*Result, error) {
	// saturates; the ledger rejects overflowing allocations itself
	var total uint64
	for _, a := range allocations {
		sum, overflow := math.SafeAdd(total, a.Amount)
		if overflow {
			total = ^uint64(0)
			break
		}
		total = sum
	}
	return s.run(ctx, opInfo{name: "initialize", authority: authority, amount: total},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.ledger.Initialize(ctx, st, authority, allocations)
		})
}

// UnlockByMilestone releases tokens for the market cap reading
func (s *Service) UnlockByMilestone(ctx context.Context, authority solana.PublicKey, marketCap uint64) (*Result, error) {
	return s.run(ctx, opInfo{name: "unlock_milestone", authority: authority, amount: marketCap},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.ledger.UnlockByMilestone(ctx, st, authority, marketCap)
		})
}

// FullUnlock releases everything after the lock period
func (s *Service) FullUnlock(ctx context.Context, authority solana.PublicKey) (*Result, error) {
	return s.run(ctx, opInfo{name: "full_unlock", authority: authority},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.ledger.FullUnlock(ctx, st, authority)
		})
}

// Purchase records a purchase for wallet
func (s *Service) Purchase(ctx context.Context, authority, wallet solana.PublicKey, totalPaid uint64) (*Result, error) {
	return s.run(ctx, opInfo{name: "purchase", authority: authority, wallet: wallet, amount: totalPaid},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.ledger.Purchase(ctx, st, authority, wallet, totalPaid)
		})
}

// Finalize performs the auto-sell and lifts the hold limit
func (s *Service) Finalize(ctx context.Context, authority solana.PublicKey) (*Result, error) {
	return s.run(ctx, opInfo{name: "finalize", authority: authority},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.ledger.Finalize(ctx, st, authority)
		})
}

// Transfer runs a token transfer through the tax hook
func (s *Service) Transfer(ctx context.Context, t vesting.Transfer) (*Result, error) {
	if s.proc.Hook == nil {
		return nil, fmt.Errorf("transfer hook not configured")
	}
	return s.run(ctx, opInfo{name: "transfer", authority: t.Source, wallet: t.Destination, amount: t.Amount},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.proc.Hook.OnTransfer(ctx, st, t)
		})
}

// Submit dispatches a raw program instruction signed by signer
func (s *Service) Submit(ctx context.Context, signer solana.PublicKey, ix solana.Instruction) (*Result, error) {
	return s.run(ctx, opInfo{name: "instruction", authority: signer},
		func(st *vesting.LedgerState) (*vesting.Receipt, error) {
			return s.proc.Process(ctx, st, signer, ix)
		})
}
