package vesting

import (
	"github.com/gagliardetto/solana-go"
)

// FullUnlockPhase - time based full unlock latch
type FullUnlockPhase uint8

const (
	FullUnlockPending  FullUnlockPhase = 0
	FullUnlockExecuted FullUnlockPhase = 1 // terminal
)

func (p FullUnlockPhase) String() string {
	switch p {
	case FullUnlockPending:
		return "pending"
	case FullUnlockExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// HoldLimitPhase - anti-whale toggle used by the tax hook
type HoldLimitPhase uint8

const (
	HoldLimitActive HoldLimitPhase = 0
	HoldLimitLifted HoldLimitPhase = 1 // terminal, set by Finalize
)

func (p HoldLimitPhase) String() string {
	switch p {
	case HoldLimitActive:
		return "active"
	case HoldLimitLifted:
		return "lifted"
	default:
		return "unknown"
	}
}

// Allocation - one investor allocation passed to Initialize
type Allocation struct {
	Wallet solana.PublicKey `json:"wallet"`
	Amount uint64           `json:"amount"`
}

// InvestorEntry - per investor bookkeeping
type InvestorEntry struct {
	Wallet         solana.PublicKey `json:"wallet"`
	TotalTokens    uint64           `json:"total_tokens"`
	UnlockedTokens uint64           `json:"unlocked_tokens"`
	LockedTokens   uint64           `json:"locked_tokens"`
}

// LedgerState - the lock pool account. It is owned by whoever calls the
// ledger and passed explicitly to every operation.
type LedgerState struct {
	TotalLocked      uint64          `json:"total_locked"`
	StartTime        int64           `json:"start_time"`
	CurrentMilestone uint8           `json:"current_milestone"`
	FullUnlock       FullUnlockPhase `json:"full_unlock"`
	HoldLimit        HoldLimitPhase  `json:"hold_limit"`
	Entries          []InvestorEntry `json:"entries"`

	index map[solana.PublicKey]int
}

// NewLedgerState returns an uninitialized state
func NewLedgerState() *LedgerState {
	return &LedgerState{index: make(map[solana.PublicKey]int)}
}

// Initialized reports whether Initialize ran
func (s *LedgerState) Initialized() bool {
	return s.StartTime != 0
}

// MaxHoldActive reports whether the anti-whale check applies
func (s *LedgerState) MaxHoldActive() bool {
	return s.HoldLimit == HoldLimitActive
}

// Entry returns the entry for wallet
func (s *LedgerState) Entry(wallet solana.PublicKey) (InvestorEntry, bool) {
	s.ensureIndex()
	i, ok := s.index[wallet]
	if !ok {
		return InvestorEntry{}, false
	}
	return s.Entries[i], true
}

// entry returns a pointer into Entries, appending a new entry when missing
func (s *LedgerState) entry(wallet solana.PublicKey) *InvestorEntry {
	s.ensureIndex()
	if i, ok := s.index[wallet]; ok {
		return &s.Entries[i]
	}
	s.Entries = append(s.Entries, InvestorEntry{Wallet: wallet})
	s.index[wallet] = len(s.Entries) - 1
	return &s.Entries[len(s.Entries)-1]
}

func (s *LedgerState) ensureIndex() {
	if s.index != nil && len(s.index) == len(s.Entries) {
		return
	}
	s.index = make(map[solana.PublicKey]int, len(s.Entries))
	for i, e := range s.Entries {
		s.index[e.Wallet] = i
	}
}

// Clone returns a deep copy
func (s *LedgerState) Clone() *LedgerState {
	out := *s
	out.Entries = make([]InvestorEntry, len(s.Entries))
	copy(out.Entries, s.Entries)
	out.index = nil
	out.ensureIndex()
	return &out
}

// replace copies next into s
func (s *LedgerState) replace(next *LedgerState) {
	*s = *next
	s.index = nil
	s.ensureIndex()
}

// SumLocked recomputes the sum of all locked balances
func (s *LedgerState) SumLocked() uint64 {
	var total uint64
	for _, e := range s.Entries {
		total += e.LockedTokens
	}
	return total
}
