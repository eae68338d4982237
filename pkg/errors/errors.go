package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// SafeguardRejected wraps the reason a safeguard check failed.
func SafeguardRejected(reason string) *AppError {
	return &AppError{
		Code:    ErrSafeguardRejected,
		Message: reason,
	}
}

// Code returns the application error code carried by err, or "" if err
// is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given application error code.
func Is(err error, code string) bool {
	return Code(err) == code
}

const (
	ErrInvalidAmount        = "INVALID_AMOUNT"
	ErrInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ErrInsufficientTreasury = "INSUFFICIENT_TREASURY"
	ErrDuplicateVote        = "DUPLICATE_VOTE"
	ErrVotingClosed         = "VOTING_CLOSED"
	ErrSafeguardRejected    = "SAFEGUARD_REJECTED"
	ErrWorkTokenCapExceeded = "WORK_TOKEN_CAP_EXCEEDED"
	ErrNotApprovedMinter    = "NOT_APPROVED_MINTER"
	ErrClubNotFound         = "CLUB_NOT_FOUND"
	ErrMemberNotFound       = "MEMBER_NOT_FOUND"
	ErrProposalNotFound     = "PROPOSAL_NOT_FOUND"
	ErrProposalNotActive    = "PROPOSAL_NOT_ACTIVE"
	ErrProposalNotPassed    = "PROPOSAL_NOT_PASSED"
	ErrInvalidPayload       = "INVALID_PAYLOAD"
	ErrConfigLoad           = "CONFIG_LOAD_ERROR"
	ErrDatabaseConnect      = "DATABASE_CONNECT_ERROR"
	ErrLedgerUpdate         = "LEDGER_UPDATE_ERROR"
)
