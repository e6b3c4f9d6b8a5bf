// Package service provides business logic implementations.
package service

import "errors"

// Typed failures surfaced by the ledger engine. Validation and
// insufficient-funds failures mutate no state; conflict failures are retried
// internally before surfacing.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrMinimumNotMet       = errors.New("amount below plan minimum")
	ErrMaximumExceeded     = errors.New("amount above plan maximum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountBlocked      = errors.New("account is blocked")
	ErrBlankAddress        = errors.New("destination address is blank")
	ErrNotReviewable       = errors.New("transaction is not pending review")
)
