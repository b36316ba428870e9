package vesting

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// LockPoolStateDiscriminator - anchor account discriminator
var LockPoolStateDiscriminator = bin.Sighash(bin.SIGHASH_ACCOUNT_NAMESPACE, "LockPoolState")

// Layout: discriminator(8) + total_locked(8) + start_time(8) +
// current_milestone(1) + full_unlock(1) + hold_limit(1) + users len(4) +
// users * (wallet(32) + total(8) + unlocked(8) + locked(8))
const (
	stateHeaderSize = 8 + 8 + 8 + 1 + 1 + 1 + 4
	entrySize       = 32 + 8 + 8 + 8
)

// StateSize returns the encoded size for n entries
func StateSize(n int) int {
	return stateHeaderSize + n*entrySize
}

// EncodeState serializes the state in the anchor (borsh) account layout
func EncodeState(st *LedgerState) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(StateSize(len(st.Entries)))
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(LockPoolStateDiscriminator, false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(st.TotalLocked, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteInt64(st.StartTime, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(st.CurrentMilestone); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(uint8(st.FullUnlock)); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(uint8(st.HoldLimit)); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(st.Entries)), bin.LE); err != nil {
		return nil, err
	}
	for _, e := range st.Entries {
		if err := enc.WriteBytes(e.Wallet.Bytes(), false); err != nil {
			return nil, err
		}
		for _, v := range []uint64{e.TotalTokens, e.UnlockedTokens, e.LockedTokens} {
			if err := enc.WriteUint64(v, bin.LE); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeState parses lock pool account data
func DecodeState(data []byte) (*LedgerState, error) {
	if len(data) < stateHeaderSize {
		return nil, fmt.Errorf("invalid lock pool data length: %d", len(data))
	}
	if !bytes.Equal(data[:8], LockPoolStateDiscriminator) {
		return nil, fmt.Errorf("invalid lock pool discriminator: %x", data[:8])
	}
	dec := bin.NewBorshDecoder(data[8:])

	st := NewLedgerState()
	var err error
	if st.TotalLocked, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("total_locked: %w", err)
	}
	if st.StartTime, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	if st.CurrentMilestone, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("current_milestone: %w", err)
	}
	fullUnlock, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("full_unlock: %w", err)
	}
	holdLimit, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("hold_limit: %w", err)
	}
	if fullUnlock > uint8(FullUnlockExecuted) || holdLimit > uint8(HoldLimitLifted) {
		return nil, fmt.Errorf("invalid latch values full_unlock=%d hold_limit=%d", fullUnlock, holdLimit)
	}
	st.FullUnlock = FullUnlockPhase(fullUnlock)
	st.HoldLimit = HoldLimitPhase(holdLimit)

	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("users length: %w", err)
	}
	if remaining := dec.Remaining(); remaining < int(n)*entrySize {
		return nil, fmt.Errorf("users: %d entries need %d bytes, have %d", n, int(n)*entrySize, remaining)
	}
	st.Entries = make([]InvestorEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, fmt.Errorf("user %d wallet: %w", i, err)
		}
		e := InvestorEntry{Wallet: solana.PublicKeyFromBytes(raw)}
		for _, dst := range []*uint64{&e.TotalTokens, &e.UnlockedTokens, &e.LockedTokens} {
			if *dst, err = dec.ReadUint64(bin.LE); err != nil {
				return nil, fmt.Errorf("user %d: %w", i, err)
			}
		}
		st.Entries = append(st.Entries, e)
	}
	st.ensureIndex()
	return st, nil
}
