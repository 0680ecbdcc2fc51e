package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the current balance for a user-owned account. Amount is NULL
// until the first transaction posts against it.
type Account struct {
	ID            int64               `json:"id" db:"id"`
	UserID        int64               `json:"user_id" db:"user_id"`
	AccountName   string              `json:"account_name" db:"account_name"`
	AccountNumber string              `json:"account_number" db:"account_number"`
	Amount        decimal.NullDecimal `json:"amount" db:"amount"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

// Balance returns the account balance, treating a NULL amount as zero.
func (a *Account) Balance() decimal.Decimal {
	if !a.Amount.Valid {
		return decimal.Zero
	}
	return a.Amount.Decimal
}
