package vesting

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"hotwings/token"
)

// CreditPolicy decides whose ledger entry receives the net amount of a taxed
// exchange transfer.
type CreditPolicy uint8

const (
	// CreditSender credits the sending wallet (default)
	CreditSender CreditPolicy = iota
	// CreditRecipient credits the destination wallet
	CreditRecipient
	// CreditNone parks the net amount in the pool without any entry
	CreditNone
)

func (p CreditPolicy) String() string {
	switch p {
	case CreditSender:
		return "sender"
	case CreditRecipient:
		return "recipient"
	case CreditNone:
		return "none"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseCreditPolicy parses "sender", "recipient" or "none"
func ParseCreditPolicy(s string) (CreditPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sender":
		return CreditSender, nil
	case "recipient":
		return CreditRecipient, nil
	case "none":
		return CreditNone, nil
	default:
		return 0, fmt.Errorf("unknown credit policy %q", s)
	}
}

// TaxConfig - tax hook configuration
type TaxConfig struct {
	Exchanges       []solana.PublicKey
	MarketingWallet solana.PublicKey
	MaxHold         uint64
	Credit          CreditPolicy
}

// Transfer - a token movement seen by the hook
type Transfer struct {
	Source      solana.PublicKey `json:"source"`
	Destination solana.PublicKey `json:"destination"`
	Amount      uint64           `json:"amount"`
}

// TaxSplit - how an exchange transfer is divided
type TaxSplit struct {
	Tax       uint64
	Burn      uint64
	Marketing uint64
	Net       uint64
}

// SplitTax computes the 1.5% tax and its halves. The halves may not add up
// to Tax for odd values; the remainder is simply not charged.
func SplitTax(amount uint64) (TaxSplit, error) {
	scaled, overflow := math.SafeMul(amount, TaxNumerator)
	if overflow {
		return TaxSplit{}, fmt.Errorf("%w: tax on %d", ErrMathOverflow, amount)
	}
	tax := scaled / TaxDenominator
	return TaxSplit{
		Tax:       tax,
		Burn:      tax / 2,
		Marketing: tax / 2,
		Net:       amount - tax,
	}, nil
}

// TaxHook intercepts token movements touching a known exchange
type TaxHook struct {
	ledger    *Ledger
	cfg       TaxConfig
	exchanges map[solana.PublicKey]struct{}
	logger    *zap.Logger
}

// NewTaxHook builds a hook on top of ledger. An empty exchange list falls back
// to DefaultExchangePrograms, a zero MaxHold to DefaultMaxHold.
func NewTaxHook(ledger *Ledger, cfg TaxConfig, logger *zap.Logger) *TaxHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = DefaultExchangePrograms
	}
	if cfg.MaxHold == 0 {
		cfg.MaxHold = DefaultMaxHold
	}
	exchanges := make(map[solana.PublicKey]struct{}, len(cfg.Exchanges))
	for _, e := range cfg.Exchanges {
		exchanges[e] = struct{}{}
	}
	return &TaxHook{ledger: ledger, cfg: cfg, exchanges: exchanges, logger: logger}
}

// IsExchange reports whether account is on the exchange allow-list
func (h *TaxHook) IsExchange(account solana.PublicKey) bool {
	_, ok := h.exchanges[account]
	return ok
}

// OnTransfer applies the hook. Non-exchange transfers go through unchanged.
// Exchange transfers are taxed and their net amount is locked in the pool.
func (h *TaxHook) OnTransfer(ctx context.Context, st *LedgerState, t Transfer) (*Receipt, error) {
	if t.Amount == 0 {
		return nil, ErrInvalidTokenAmount
	}
	l := h.ledger

	if !h.IsExchange(t.Source) && !h.IsExchange(t.Destination) {
		batch := (&token.Batch{}).Open(t.Destination).Transfer(t.Source, t.Destination, t.Amount)
		if err := l.tokens.Execute(ctx, batch); err != nil {
			return nil, fmt.Errorf("token transfer failed: %w", err)
		}
		return &Receipt{Operation: "transfer", Wallet: t.Source, Transfers: 1, Milestone: st.CurrentMilestone}, nil
	}
	if !st.Initialized() {
		return nil, ErrNotInitialized
	}

	split, err := SplitTax(t.Amount)
	if err != nil {
		return nil, err
	}

	if st.MaxHoldActive() {
		held, err := l.tokens.BalanceOf(ctx, t.Destination)
		if err != nil {
			return nil, fmt.Errorf("failed to read destination balance: %w", err)
		}
		after, overflow := math.SafeAdd(held, split.Net)
		if overflow || after > h.cfg.MaxHold {
			return nil, fmt.Errorf("%w: %s would hold %d, limit %d", ErrMaxHoldExceeded, t.Destination, after, h.cfg.MaxHold)
		}
	}

	next := st.Clone()
	var credited solana.PublicKey
	switch h.cfg.Credit {
	case CreditSender:
		credited = t.Source
	case CreditRecipient:
		credited = t.Destination
	}
	if h.cfg.Credit != CreditNone && split.Net > 0 {
		e := next.entry(credited)
		total, of1 := math.SafeAdd(e.TotalTokens, split.Net)
		locked, of2 := math.SafeAdd(e.LockedTokens, split.Net)
		totalLocked, of3 := math.SafeAdd(next.TotalLocked, split.Net)
		if of1 || of2 || of3 {
			return nil, fmt.Errorf("%w: credit for %s", ErrMathOverflow, credited)
		}
		e.TotalTokens, e.LockedTokens, next.TotalLocked = total, locked, totalLocked
	}

	batch := &token.Batch{}
	batch.Burn(t.Source, split.Burn)
	batch.Open(h.cfg.MarketingWallet).Transfer(t.Source, h.cfg.MarketingWallet, split.Marketing)
	batch.Transfer(t.Source, l.pool, split.Net)

	if err := l.commit(ctx, st, next, batch); err != nil {
		return nil, err
	}
	h.logger.Info("exchange transfer taxed",
		zap.Stringer("source", t.Source),
		zap.Stringer("destination", t.Destination),
		zap.Uint64("amount", t.Amount),
		zap.Uint64("burned", split.Burn),
		zap.Uint64("marketing", split.Marketing),
		zap.Uint64("net", split.Net),
		zap.Stringer("credit", h.cfg.Credit))
	return &Receipt{
		Operation: "transfer",
		Wallet:    credited,
		Milestone: st.CurrentMilestone,
		Locked:    split.Net,
		Burned:    split.Burn,
		Marketing: split.Marketing,
		Transfers: countTransfers(batch),
	}, nil
}
