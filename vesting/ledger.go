package vesting

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"hotwings/token"
)

// Clock - external wall clock, unix seconds
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads time.Now
var SystemClock Clock = ClockFunc(func() int64 { return time.Now().Unix() })

// Config - ledger wiring. Every account is identified by its owner.
type Config struct {
	ProgramID solana.PublicKey
	Mint      solana.PublicKey
	Authority solana.PublicKey

	// Pool is optional; when set it must equal the derived PDA
	Pool solana.PublicKey

	Source               solana.PublicKey // admin funding wallet used by Initialize
	Liquidity            solana.PublicKey // upstream source of purchased locked tokens
	ProjectWallet        solana.PublicKey
	LiquidityDestination solana.PublicKey
}

// Receipt - what an accepted operation did
type Receipt struct {
	Operation  string           `json:"operation"`
	Wallet     solana.PublicKey `json:"wallet,omitempty"`
	Percentage uint8            `json:"percentage,omitempty"`
	Milestone  uint8            `json:"milestone"`
	Unlocked   uint64           `json:"unlocked"`
	Locked     uint64           `json:"locked"`
	Burned     uint64           `json:"burned,omitempty"`
	Marketing  uint64           `json:"marketing,omitempty"`
	Transfers  int              `json:"transfers"`
}

// Ledger runs vesting operations against an explicitly passed LedgerState.
// It keeps no state of its own; callers serialize access to a state.
type Ledger struct {
	cfg      Config
	pool     solana.PublicKey
	poolBump uint8
	tokens   token.Service
	clock    Clock
	logger   *zap.Logger
}

// DerivePoolPDA derives the lock pool address
func DerivePoolPDA(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			SeedLockPool,
			mint.Bytes(),
		},
		programID,
	)
}

// NewLedger validates the pool address and returns a ledger
func NewLedger(cfg Config, tokens token.Service, clock Clock, logger *zap.Logger) (*Ledger, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, bump, err := DerivePoolPDA(cfg.ProgramID, cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive pool PDA: %w", err)
	}
	if !cfg.Pool.IsZero() && !cfg.Pool.Equals(pool) {
		return nil, fmt.Errorf("%w: configured %s, derived %s", ErrInvalidPoolPDA, cfg.Pool, pool)
	}
	cfg.Pool = pool
	return &Ledger{
		cfg:      cfg,
		pool:     pool,
		poolBump: bump,
		tokens:   tokens,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Pool returns the pool PDA
func (l *Ledger) Pool() solana.PublicKey { return l.pool }

// PoolBump returns the pool PDA bump seed
func (l *Ledger) PoolBump() uint8 { return l.poolBump }

// Config returns the ledger configuration with the derived pool filled in
func (l *Ledger) Config() Config { return l.cfg }

func (l *Ledger) authorize(authority solana.PublicKey) error {
	if !authority.Equals(l.cfg.Authority) {
		return ErrUnauthorized
	}
	return nil
}

// commit runs the batch and only then publishes next into st
func (l *Ledger) commit(ctx context.Context, st, next *LedgerState, batch *token.Batch) error {
	if err := l.tokens.Execute(ctx, batch); err != nil {
		return fmt.Errorf("token transfer failed: %w", err)
	}
	st.replace(next)
	return nil
}

func countTransfers(batch *token.Batch) int {
	n := 0
	for _, m := range batch.Movements {
		if m.Kind == token.KindTransfer {
			n++
		}
	}
	return n
}

// Initialize funds the pool with the presale allocations and starts the clock
func (l *Ledger) Initialize(ctx context.Context, st *LedgerState, authority solana.PublicKey, allocations []Allocation) (*Receipt, error) {
	if err := l.authorize(authority); err != nil {
		return nil, err
	}
	if st.Initialized() {
		return nil, ErrAlreadyInitialized
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: no allocations", ErrInvalidTokenAmount)
	}
	now := l.clock.Now()
	if now <= 0 {
		return nil, fmt.Errorf("clock returned invalid timestamp %d", now)
	}

	next := st.Clone()
	batch := (&token.Batch{}).Open(l.pool)
	var sum uint64
	for _, a := range allocations {
		if a.Amount == 0 {
			return nil, fmt.Errorf("%w: zero allocation for %s", ErrInvalidTokenAmount, a.Wallet)
		}
		e := next.entry(a.Wallet)
		total, of1 := math.SafeAdd(e.TotalTokens, a.Amount)
		locked, of2 := math.SafeAdd(e.LockedTokens, a.Amount)
		s, of3 := math.SafeAdd(sum, a.Amount)
		if of1 || of2 || of3 {
			return nil, fmt.Errorf("%w: allocation for %s", ErrMathOverflow, a.Wallet)
		}
		e.TotalTokens, e.LockedTokens, sum = total, locked, s
		batch.Transfer(l.cfg.Source, l.pool, a.Amount)
	}
	totalLocked, overflow := math.SafeAdd(next.TotalLocked, sum)
	if overflow {
		return nil, fmt.Errorf("%w: total locked", ErrMathOverflow)
	}
	next.TotalLocked = totalLocked
	next.StartTime = now
	next.FullUnlock = FullUnlockPending
	next.HoldLimit = HoldLimitActive

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	l.logger.Info("lock pool initialized",
		zap.Int("investors", len(st.Entries)),
		zap.Uint64("total_locked", st.TotalLocked),
		zap.Int64("start_time", st.StartTime))
	return &Receipt{
		Operation: "initialize",
		Milestone: st.CurrentMilestone,
		Locked:    sum,
		Transfers: countTransfers(batch),
	}, nil
}

// UnlockByMilestone releases every investor's share up to the percentage the
// market cap reaches. All entries update or none do.
func (l *Ledger) UnlockByMilestone(ctx context.Context, st *LedgerState, authority solana.PublicKey, marketCap uint64) (*Receipt, error) {
	if err := l.authorize(authority); err != nil {
		return nil, err
	}
	if !st.Initialized() {
		return nil, ErrNotInitialized
	}
	percentage := MilestonePercentage(marketCap)
	current := PercentageForIndex(st.CurrentMilestone)
	if percentage <= current {
		return nil, fmt.Errorf("%w: market cap %d unlocks %d%%, already at %d%%", ErrMilestoneNotReached, marketCap, percentage, current)
	}
	index, ok := IndexForPercentage(percentage)
	if !ok {
		return nil, inconsistent("no milestone index for %d%%", percentage)
	}

	next := st.Clone()
	batch := &token.Batch{}
	var released uint64
	for i := range next.Entries {
		e := &next.Entries[i]
		scaled, overflow := math.SafeMul(e.TotalTokens, uint64(percentage))
		if overflow {
			return nil, fmt.Errorf("%w: unlock target for %s", ErrMathOverflow, e.Wallet)
		}
		target := scaled / 100
		// An entry already at or past its target (e.g. after a full unlock)
		// releases nothing instead of wrapping.
		if target <= e.UnlockedTokens {
			continue
		}
		delta := target - e.UnlockedTokens
		locked, underflow := math.SafeSub(e.LockedTokens, delta)
		if underflow {
			return nil, fmt.Errorf("%w: %s has %d locked, needs %d", ErrMathOverflow, e.Wallet, e.LockedTokens, delta)
		}
		totalLocked, underflow := math.SafeSub(next.TotalLocked, delta)
		if underflow {
			return nil, fmt.Errorf("%w: total locked below %d", ErrMathOverflow, delta)
		}
		e.UnlockedTokens = target
		e.LockedTokens = locked
		next.TotalLocked = totalLocked
		released += delta
		batch.Open(e.Wallet).Transfer(l.pool, e.Wallet, delta)
	}
	next.CurrentMilestone = index

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	l.logger.Info("milestone unlocked",
		zap.Uint64("market_cap", marketCap),
		zap.Uint8("percentage", percentage),
		zap.Uint8("milestone", index),
		zap.Uint64("released", released))
	return &Receipt{
		Operation:  "unlock_milestone",
		Percentage: percentage,
		Milestone:  index,
		Unlocked:   released,
		Transfers:  countTransfers(batch),
	}, nil
}

// FullUnlock releases everything once FullUnlockDelay has passed since
// Initialize. It can run only once.
func (l *Ledger) FullUnlock(ctx context.Context, st *LedgerState, authority solana.PublicKey) (*Receipt, error) {
	if err := l.authorize(authority); err != nil {
		return nil, err
	}
	if st.FullUnlock == FullUnlockExecuted {
		return nil, ErrFullUnlockAlreadyExecuted
	}
	if !st.Initialized() {
		return nil, ErrNotInitialized
	}
	now := l.clock.Now()
	if now-st.StartTime < FullUnlockDelay {
		return nil, fmt.Errorf("%w: %d seconds left", ErrUnlockTooSoon, st.StartTime+FullUnlockDelay-now)
	}

	next := st.Clone()
	batch := &token.Batch{}
	var released uint64
	for i := range next.Entries {
		e := &next.Entries[i]
		if e.LockedTokens == 0 {
			continue
		}
		amount := e.LockedTokens
		unlocked, overflow := math.SafeAdd(e.UnlockedTokens, amount)
		if overflow {
			return nil, fmt.Errorf("%w: unlocked balance of %s", ErrMathOverflow, e.Wallet)
		}
		totalLocked, underflow := math.SafeSub(next.TotalLocked, amount)
		if underflow {
			return nil, fmt.Errorf("%w: total locked below %d", ErrMathOverflow, amount)
		}
		e.UnlockedTokens = unlocked
		e.LockedTokens = 0
		next.TotalLocked = totalLocked
		released += amount
		batch.Open(e.Wallet).Transfer(l.pool, e.Wallet, amount)
	}
	next.FullUnlock = FullUnlockExecuted

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	l.logger.Info("full unlock executed",
		zap.Uint64("released", released),
		zap.Int64("elapsed", now-st.StartTime))
	return &Receipt{
		Operation: "full_unlock",
		Milestone: st.CurrentMilestone,
		Unlocked:  released,
		Transfers: countTransfers(batch),
	}, nil
}

// Purchase credits a new purchase: the share already unlocked at the current
// milestone is paid from the pool, the rest is locked for the buyer.
func (l *Ledger) Purchase(ctx context.Context, st *LedgerState, authority, wallet solana.PublicKey, totalPaid uint64) (*Receipt, error) {
	if err := l.authorize(authority); err != nil {
		return nil, err
	}
	if totalPaid == 0 {
		return nil, ErrInvalidTokenAmount
	}
	if !st.Initialized() {
		return nil, ErrNotInitialized
	}
	percentage := PercentageForIndex(st.CurrentMilestone)
	scaled, overflow := math.SafeMul(totalPaid, uint64(percentage))
	if overflow {
		return nil, fmt.Errorf("%w: purchase of %d", ErrMathOverflow, totalPaid)
	}
	unlocked := scaled / 100
	locked := totalPaid - unlocked

	poolBalance, err := l.tokens.BalanceOf(ctx, l.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool balance: %w", err)
	}
	if poolBalance < unlocked {
		return nil, fmt.Errorf("%w: pool holds %d, purchase unlocks %d", ErrInsufficientPoolBalance, poolBalance, unlocked)
	}

	next := st.Clone()
	batch := (&token.Batch{}).Open(wallet)
	batch.Transfer(l.pool, wallet, unlocked)
	batch.Transfer(l.cfg.Liquidity, l.pool, locked)
	if locked > 0 {
		e := next.entry(wallet)
		total, of1 := math.SafeAdd(e.TotalTokens, locked)
		entryLocked, of2 := math.SafeAdd(e.LockedTokens, locked)
		totalLocked, of3 := math.SafeAdd(next.TotalLocked, locked)
		if of1 || of2 || of3 {
			return nil, fmt.Errorf("%w: purchase for %s", ErrMathOverflow, wallet)
		}
		e.TotalTokens, e.LockedTokens, next.TotalLocked = total, entryLocked, totalLocked
	}

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	l.logger.Info("purchase recorded",
		zap.Stringer("wallet", wallet),
		zap.Uint64("total_paid", totalPaid),
		zap.Uint64("unlocked", unlocked),
		zap.Uint64("locked", locked))
	return &Receipt{
		Operation:  "purchase",
		Wallet:     wallet,
		Percentage: percentage,
		Milestone:  st.CurrentMilestone,
		Unlocked:   unlocked,
		Locked:     locked,
		Transfers:  countTransfers(batch),
	}, nil
}

// Finalize moves a quarter of the project wallet to liquidity and lifts the
// max hold limit for good. Allowed after the last milestone or once
// FullUnlockDelay has passed.
func (l *Ledger) Finalize(ctx context.Context, st *LedgerState, authority solana.PublicKey) (*Receipt, error) {
	if err := l.authorize(authority); err != nil {
		return nil, err
	}
	if !st.Initialized() {
		return nil, ErrNotInitialized
	}
	if st.HoldLimit == HoldLimitLifted {
		return nil, ErrAlreadyFinalized
	}
	now := l.clock.Now()
	if st.CurrentMilestone < MaxMilestone && now-st.StartTime < FullUnlockDelay {
		return nil, fmt.Errorf("%w: milestone %d, %d seconds left", ErrUnlockTooSoon, st.CurrentMilestone, st.StartTime+FullUnlockDelay-now)
	}

	balance, err := l.tokens.BalanceOf(ctx, l.cfg.ProjectWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read project wallet balance: %w", err)
	}
	scaled, overflow := math.SafeMul(balance, AutoSellPercent)
	if overflow {
		return nil, fmt.Errorf("%w: auto sell overflows for balance %d", ErrInvalidTokenAmount, balance)
	}
	autoSell := scaled / 100
	if autoSell == 0 {
		return nil, fmt.Errorf("%w: nothing to auto sell", ErrInvalidTokenAmount)
	}

	next := st.Clone()
	next.HoldLimit = HoldLimitLifted
	batch := (&token.Batch{}).Open(l.cfg.LiquidityDestination)
	batch.Transfer(l.cfg.ProjectWallet, l.cfg.LiquidityDestination, autoSell)

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	l.logger.Info("finalized",
		zap.Uint64("auto_sell", autoSell),
		zap.Stringer("destination", l.cfg.LiquidityDestination))
	return &Receipt{
		Operation: "finalize",
		Milestone: st.CurrentMilestone,
		Unlocked:  autoSell,
		Transfers: countTransfers(batch),
	}, nil
}

// Reconcile checks the ledger invariants
func Reconcile(st *LedgerState) error {
	var sum uint64
	for _, e := range st.Entries {
		total, overflow := math.SafeAdd(e.UnlockedTokens, e.LockedTokens)
		if overflow || total != e.TotalTokens {
			return inconsistent("entry %s: total %d != unlocked %d + locked %d", e.Wallet, e.TotalTokens, e.UnlockedTokens, e.LockedTokens)
		}
		s, overflow := math.SafeAdd(sum, e.LockedTokens)
		if overflow {
			return inconsistent("sum of locked tokens overflows")
		}
		sum = s
	}
	if sum != st.TotalLocked {
		return inconsistent("sum of locked %d != total locked %d", sum, st.TotalLocked)
	}
	if st.CurrentMilestone > MaxMilestone {
		return inconsistent("milestone %d out of range", st.CurrentMilestone)
	}
	return nil
}
