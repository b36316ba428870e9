package vesting

import (
	"errors"
	"fmt"
)

// ProgramError is a rejection with a stable custom error code. Codes start at
// 6000 like Anchor custom errors so clients can share one code table.
type ProgramError struct {
	Code int
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

func newProgramError(code int, name, msg string) *ProgramError {
	e := &ProgramError{Code: code, Name: name, Msg: msg}
	ProgramErrors[code] = e
	return e
}

// ProgramErrors - every known error by code
var ProgramErrors = map[int]*ProgramError{}

var (
	ErrUnauthorized              = newProgramError(6000, "Unauthorized", "caller is not the configured authority")
	ErrAlreadyInitialized        = newProgramError(6001, "AlreadyInitialized", "lock pool is already initialized")
	ErrMilestoneNotReached       = newProgramError(6002, "MilestoneNotReached", "market cap does not reach the next milestone")
	ErrMilestoneAlreadyProcessed = newProgramError(6003, "MilestoneAlreadyProcessed", "milestone already processed")
	ErrUnlockTooSoon             = newProgramError(6004, "UnlockTooSoon", "three months have not yet passed")
	ErrFullUnlockAlreadyExecuted = newProgramError(6005, "FullUnlockAlreadyExecuted", "full unlock was already executed")
	ErrInvalidTokenAmount        = newProgramError(6006, "InvalidTokenAmount", "token amount is zero or invalid")
	ErrInsufficientPoolBalance   = newProgramError(6007, "InsufficientPoolBalance", "pool balance is too low for this transfer")
	ErrMaxHoldExceeded           = newProgramError(6008, "MaxHoldExceeded", "destination would exceed the max hold limit")
	ErrInvalidPoolPDA            = newProgramError(6009, "InvalidPoolPDA", "pool address does not match its program derived address")
	ErrMathOverflow              = newProgramError(6010, "MathOverflow", "math calculation overflow")
	ErrNotInitialized            = newProgramError(6011, "NotInitialized", "lock pool is not initialized")
	ErrAlreadyFinalized          = newProgramError(6012, "AlreadyFinalized", "finalize already ran")
	ErrLedgerInconsistent        = newProgramError(6013, "LedgerInconsistent", "ledger invariants do not hold")
	ErrUnknownInstruction        = newProgramError(6014, "UnknownInstruction", "unknown instruction discriminator")
)

// Alternate names for the same codes
var (
	ErrThreeMonthsNotPassed = ErrUnlockTooSoon
	ErrInsufficientFunds    = ErrInsufficientPoolBalance
)

// CodeOf returns the custom error code carried by err, if any
func CodeOf(err error) *int {
	var pe *ProgramError
	if errors.As(err, &pe) {
		code := pe.Code
		return &code
	}
	return nil
}

// inconsistent wraps ErrLedgerInconsistent with the violated invariant
func inconsistent(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrLedgerInconsistent, fmt.Sprintf(format, args...))
}
