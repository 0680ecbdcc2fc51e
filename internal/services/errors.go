package services

import "errors"

// Domain errors returned by the ledger engine. Callers switch on these with
// errors.Is to pick the HTTP status; anything else is a server error.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidAmount          = errors.New("amount must be a positive number with at most two decimal places")
)
