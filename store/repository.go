// Package store persists the ledger state and an operation history with gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"hotwings/vesting"
)

// ErrNotFound - no ledger stored for the program
var ErrNotFound = errors.New("ledger not found")

// Repository - gorm backed ledger storage
type Repository struct {
	db *gorm.DB
}

// Open opens a sqlite database at dsn and migrates the schema
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema
func New(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&LedgerRecord{}, &EntryRecord{}, &OperationHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Repository{db: db}, nil
}

// DB exposes the underlying connection
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Close closes the underlying connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save writes the encoded state and its entries in one transaction
func (r *Repository) Save(ctx context.Context, programID, pool solana.PublicKey, st *vesting.LedgerState) error {
	data, err := vesting.EncodeState(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	pid := programID.String()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := LedgerRecord{
			ProgramID:        pid,
			Pool:             pool.String(),
			Data:             data,
			TotalLocked:      Amount(st.TotalLocked),
			CurrentMilestone: st.CurrentMilestone,
			FullUnlock:       st.FullUnlock.String(),
			HoldLimit:        st.HoldLimit.String(),
			StartTime:        st.StartTime,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "program_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"pool", "data", "total_locked", "current_milestone",
				"full_unlock", "hold_limit", "start_time", "updated_at",
			}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}

		for i, e := range st.Entries {
			entry := EntryRecord{
				ProgramID:      pid,
				Wallet:         e.Wallet.String(),
				Position:       i,
				TotalTokens:    Amount(e.TotalTokens),
				UnlockedTokens: Amount(e.UnlockedTokens),
				LockedTokens:   Amount(e.LockedTokens),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "program_id"}, {Name: "wallet"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"position", "total_tokens", "unlocked_tokens", "locked_tokens", "updated_at",
				}),
			}).Create(&entry).Error
			if err != nil {
				return fmt.Errorf("failed to save entry %s: %w", e.Wallet, err)
			}
		}
		return nil
	})
}

// Load decodes the stored state. ErrNotFound if nothing was saved yet.
func (r *Repository) Load(ctx context.Context, programID solana.PublicKey) (*vesting.LedgerState, error) {
	var rec LedgerRecord
	err := r.db.WithContext(ctx).Where("program_id = ?", programID.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	st, err := vesting.DecodeState(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored ledger: %w", err)
	}
	return st, nil
}

// Entries returns the stored entries in ledger order
func (r *Repository) Entries(ctx context.Context, programID solana.PublicKey) ([]EntryRecord, error) {
	var entries []EntryRecord
	err := r.db.WithContext(ctx).
		Where("program_id = ?", programID.String()).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}

// Record appends an operation to the history
func (r *Repository) Record(ctx context.Context, op *OperationHistory) error {
	if err := r.db.WithContext(ctx).Create(op).Error; err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

// History returns operations touching wallet, newest first. An empty wallet
// returns every operation.
func (r *Repository) History(ctx context.Context, wallet string, limit int) ([]OperationHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var histories []OperationHistory
	q := r.db.WithContext(ctx)
	if wallet != "" {
		q = q.Where("wallet = ? OR authority = ?", wallet, wallet)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&histories).Error
	return histories, err
}
