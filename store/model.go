package store

import (
	"time"
)

// Operation status values
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusUnsaved  = "unsaved" // tokens moved, state not persisted
)

// LedgerRecord - persisted lock pool account, one row per program
type LedgerRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ProgramID        string    `gorm:"uniqueIndex;size:44" json:"program_id"`
	Pool             string    `gorm:"size:44" json:"pool"`
	Data             []byte    `json:"-"`
	TotalLocked      Amount    `gorm:"type:varchar(20)" json:"total_locked"`
	CurrentMilestone uint8     `json:"current_milestone"`
	FullUnlock       string    `gorm:"size:20" json:"full_unlock"`
	HoldLimit        string    `gorm:"size:20" json:"hold_limit"`
	StartTime        int64     `json:"start_time"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (LedgerRecord) TableName() string {
	return "ledger_records"
}

// EntryRecord - queryable copy of one investor entry
type EntryRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProgramID      string    `gorm:"uniqueIndex:idx_entry_wallet;size:44" json:"program_id"`
	Wallet         string    `gorm:"uniqueIndex:idx_entry_wallet;size:44" json:"wallet"`
	Position       int       `json:"position"`
	TotalTokens    Amount    `gorm:"type:varchar(20)" json:"total_tokens"`
	UnlockedTokens Amount    `gorm:"type:varchar(20)" json:"unlocked_tokens"`
	LockedTokens   Amount    `gorm:"type:varchar(20)" json:"locked_tokens"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (EntryRecord) TableName() string {
	return "entry_records"
}

// OperationHistory - one row per operation attempt
type OperationHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OperationID  string    `gorm:"uniqueIndex;size:36" json:"operation_id"`
	ProgramID    string    `gorm:"index;size:44" json:"program_id"`
	Operation    string    `gorm:"index;size:32" json:"operation"`
	Authority    string    `gorm:"size:44" json:"authority"`
	Wallet       string    `gorm:"index;size:44" json:"wallet,omitempty"`
	Amount       Amount    `gorm:"type:varchar(20)" json:"amount"`
	Unlocked     Amount    `gorm:"type:varchar(20)" json:"unlocked"`
	Locked       Amount    `gorm:"type:varchar(20)" json:"locked"`
	Milestone    uint8     `json:"milestone"`
	Status       string    `gorm:"index;size:20" json:"status"`
	ErrorCode    *int      `json:"error_code,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (OperationHistory) TableName() string {
	return "operation_histories"
}
