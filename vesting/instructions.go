package vesting

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction discriminators
var (
	InitializeDisc        = bin.SighashInstruction("initialize")
	UnlockByMilestoneDisc = bin.SighashInstruction("unlock_tokens_by_milestone")
	FullUnlockDisc        = bin.SighashInstruction("full_unlock")
	PurchaseDisc          = bin.SighashInstruction("purchase_tokens")
	FinalizeDisc          = bin.SighashInstruction("finalize")
	TransferHookDisc      = bin.SighashInstruction("transfer_hook")
)

// InstructionKind - the fixed set of ledger instructions
type InstructionKind uint8

const (
	InstructionInitialize InstructionKind = iota + 1
	InstructionUnlockByMilestone
	InstructionFullUnlock
	InstructionPurchase
	InstructionFinalize
	InstructionTransferHook
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionInitialize:
		return "initialize"
	case InstructionUnlockByMilestone:
		return "unlock_tokens_by_milestone"
	case InstructionFullUnlock:
		return "full_unlock"
	case InstructionPurchase:
		return "purchase_tokens"
	case InstructionFinalize:
		return "finalize"
	case InstructionTransferHook:
		return "transfer_hook"
	default:
		return fmt.Sprintf("instruction(%d)", uint8(k))
	}
}

var discriminators = map[InstructionKind][]byte{
	InstructionInitialize:        InitializeDisc,
	InstructionUnlockByMilestone: UnlockByMilestoneDisc,
	InstructionFullUnlock:        FullUnlockDisc,
	InstructionPurchase:          PurchaseDisc,
	InstructionFinalize:          FinalizeDisc,
	InstructionTransferHook:      TransferHookDisc,
}

// Instruction - a decoded instruction and its arguments
type Instruction struct {
	Kind        InstructionKind
	Allocations []Allocation
	MarketCap   uint64
	Wallet      solana.PublicKey
	Amount      uint64
	Transfer    Transfer
}

// EncodeInstruction serializes ix as discriminator + borsh args
func EncodeInstruction(ix Instruction) ([]byte, error) {
	disc, ok := discriminators[ix.Kind]
	if !ok {
		return nil, ErrUnknownInstruction
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(disc, false); err != nil {
		return nil, err
	}

	var err error
	switch ix.Kind {
	case InstructionInitialize:
		err = enc.WriteUint32(uint32(len(ix.Allocations)), bin.LE)
		for _, a := range ix.Allocations {
			if err != nil {
				break
			}
			if err = enc.WriteBytes(a.Wallet.Bytes(), false); err == nil {
				err = enc.WriteUint64(a.Amount, bin.LE)
			}
		}
	case InstructionUnlockByMilestone:
		err = enc.WriteUint64(ix.MarketCap, bin.LE)
	case InstructionPurchase:
		if err = enc.WriteBytes(ix.Wallet.Bytes(), false); err == nil {
			err = enc.WriteUint64(ix.Amount, bin.LE)
		}
	case InstructionTransferHook:
		if err = enc.WriteBytes(ix.Transfer.Source.Bytes(), false); err == nil {
			if err = enc.WriteBytes(ix.Transfer.Destination.Bytes(), false); err == nil {
				err = enc.WriteUint64(ix.Transfer.Amount, bin.LE)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ix.Kind, err)
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses instruction data
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < 8 {
		return Instruction{}, fmt.Errorf("%w: data too short (%d bytes)", ErrUnknownInstruction, len(data))
	}
	ix := Instruction{}
	for kind, disc := range discriminators {
		if bytes.Equal(data[:8], disc) {
			ix.Kind = kind
			break
		}
	}
	if ix.Kind == 0 {
		return Instruction{}, fmt.Errorf("%w: discriminator %x", ErrUnknownInstruction, data[:8])
	}
	dec := bin.NewBorshDecoder(data[8:])

	readKey := func() (solana.PublicKey, error) {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return solana.PublicKey{}, err
		}
		return solana.PublicKeyFromBytes(raw), nil
	}

	var err error
	switch ix.Kind {
	case InstructionInitialize:
		var n uint32
		if n, err = dec.ReadUint32(bin.LE); err != nil {
			break
		}
		if remaining := dec.Remaining(); remaining < int(n)*40 {
			err = fmt.Errorf("%d allocations need %d bytes, have %d", n, int(n)*40, remaining)
			break
		}
		ix.Allocations = make([]Allocation, 0, n)
		for i := uint32(0); i < n && err == nil; i++ {
			var a Allocation
			if a.Wallet, err = readKey(); err == nil {
				a.Amount, err = dec.ReadUint64(bin.LE)
			}
			ix.Allocations = append(ix.Allocations, a)
		}
	case InstructionUnlockByMilestone:
		ix.MarketCap, err = dec.ReadUint64(bin.LE)
	case InstructionPurchase:
		if ix.Wallet, err = readKey(); err == nil {
			ix.Amount, err = dec.ReadUint64(bin.LE)
		}
	case InstructionTransferHook:
		if ix.Transfer.Source, err = readKey(); err == nil {
			if ix.Transfer.Destination, err = readKey(); err == nil {
				ix.Transfer.Amount, err = dec.ReadUint64(bin.LE)
			}
		}
	}
	if err != nil {
		return Instruction{}, fmt.Errorf("failed to decode %s args: %w", ix.Kind, err)
	}
	if dec.HasRemaining() {
		return Instruction{}, fmt.Errorf("failed to decode %s args: %d trailing bytes", ix.Kind, dec.Remaining())
	}
	return ix, nil
}

func buildInstruction(programID, mint, authority solana.PublicKey, ix Instruction) (solana.Instruction, error) {
	pool, _, err := DerivePoolPDA(programID, mint)
	if err != nil {
		return nil, err
	}
	data, err := EncodeInstruction(ix)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.Meta(pool).WRITE(),
			solana.Meta(mint),
			solana.Meta(authority).WRITE().SIGNER(),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SystemProgramID),
		},
		data,
	), nil
}

// BuildInitializeInstruction builds initialize instruction
func BuildInitializeInstruction(programID, mint, authority solana.PublicKey, allocations []Allocation) (solana.Instruction, error) {
	return buildInstruction(programID, mint, authority, Instruction{Kind: InstructionInitialize, Allocations: allocations})
}

// BuildUnlockByMilestoneInstruction builds unlock_tokens_by_milestone instruction
func BuildUnlockByMilestoneInstruction(programID, mint, authority solana.PublicKey, marketCap uint64) (solana.Instruction, error) {
	return buildInstruction(programID, mint, authority, Instruction{Kind: InstructionUnlockByMilestone, MarketCap: marketCap})
}

// BuildFullUnlockInstruction builds full_unlock instruction
func BuildFullUnlockInstruction(programID, mint, authority solana.PublicKey) (solana.Instruction, error) {
	return buildInstruction(programID, mint, authority, Instruction{Kind: InstructionFullUnlock})
}

// BuildPurchaseInstruction builds purchase_tokens instruction
func BuildPurchaseInstruction(programID, mint, authority, wallet solana.PublicKey, totalPaid uint64) (solana.Instruction, error) {
	return buildInstruction(programID, mint, authority, Instruction{Kind: InstructionPurchase, Wallet: wallet, Amount: totalPaid})
}

// BuildFinalizeInstruction builds finalize instruction
func BuildFinalizeInstruction(programID, mint, authority solana.PublicKey) (solana.Instruction, error) {
	return buildInstruction(programID, mint, authority, Instruction{Kind: InstructionFinalize})
}

// BuildTransferHookInstruction builds transfer_hook instruction. The signer is
// the transfer source.
func BuildTransferHookInstruction(programID, mint solana.PublicKey, t Transfer) (solana.Instruction, error) {
	return buildInstruction(programID, mint, t.Source, Instruction{Kind: InstructionTransferHook, Transfer: t})
}

// Processor dispatches decoded instructions to the ledger and the tax hook
type Processor struct {
	Ledger *Ledger
	Hook   *TaxHook
}

// Process decodes ix and runs it against st on behalf of signer
func (p *Processor) Process(ctx context.Context, st *LedgerState, signer solana.PublicKey, ix solana.Instruction) (*Receipt, error) {
	if !ix.ProgramID().Equals(p.Ledger.cfg.ProgramID) {
		return nil, fmt.Errorf("%w: program %s", ErrUnknownInstruction, ix.ProgramID())
	}
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction data: %w", err)
	}
	decoded, err := DecodeInstruction(data)
	if err != nil {
		return nil, err
	}

	switch decoded.Kind {
	case InstructionInitialize:
		return p.Ledger.Initialize(ctx, st, signer, decoded.Allocations)
	case InstructionUnlockByMilestone:
		return p.Ledger.UnlockByMilestone(ctx, st, signer, decoded.MarketCap)
	case InstructionFullUnlock:
		return p.Ledger.FullUnlock(ctx, st, signer)
	case InstructionPurchase:
		return p.Ledger.Purchase(ctx, st, signer, decoded.Wallet, decoded.Amount)
	case InstructionFinalize:
		return p.Ledger.Finalize(ctx, st, signer)
	case InstructionTransferHook:
		if p.Hook == nil {
			return nil, fmt.Errorf("%w: transfer hook not configured", ErrUnknownInstruction)
		}
		if !signer.Equals(decoded.Transfer.Source) {
			return nil, ErrUnauthorized
		}
		return p.Hook.OnTransfer(ctx, st, decoded.Transfer)
	default:
		return nil, ErrUnknownInstruction
	}
}
