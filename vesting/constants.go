package vesting

import "github.com/gagliardetto/solana-go"

// Program IDs
const (
	// Hotwings program ID (declare_id of the on-chain program)
	HotwingsProgramID = "6vxBssG3FvWset4jv3STQGGnq3mTqkkD2BSbYC5s7j89"
)

// PDA Seeds
var (
	SeedLockPool = []byte("lock_pool")
)

// Timing
const (
	// FullUnlockDelay - 3 months approximated as 3 x 30 days. Not calendar
	// accurate, must stay exactly this value.
	FullUnlockDelay int64 = 3 * 30 * 24 * 60 * 60 // 7_776_000
)

// Tax hook
const (
	// TaxNumerator / TaxDenominator = 1.5%
	TaxNumerator   = 15
	TaxDenominator = 1000

	// DefaultMaxHold - anti-whale ceiling while the hold limit is active
	DefaultMaxHold uint64 = 50_000_000
)

// Finalize
const (
	// AutoSellPercent of the project wallet balance moved to liquidity
	AutoSellPercent = 25
)

// Known exchange venue program IDs (mainnet). These are only defaults for
// TaxConfig.Exchanges; deployments override them through configuration.
var (
	RaydiumAMMV4ProgramID   = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCLMMProgramID    = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	RaydiumCPMMProgramID    = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	OrcaWhirlpoolProgramID  = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMMProgramID    = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	PumpAMMProgramID        = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	JupiterV6ProgramID      = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	DefaultExchangePrograms = []solana.PublicKey{
		RaydiumAMMV4ProgramID,
		RaydiumCLMMProgramID,
		RaydiumCPMMProgramID,
		OrcaWhirlpoolProgramID,
		MeteoraDLMMProgramID,
		PumpAMMProgramID,
		JupiterV6ProgramID,
	}
)
