package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TypeCredit = "CREDIT"
	TypeDebit  = "DEBIT"
)

// Transaction is an immutable ledger entry recording a single balance-affecting
// event. Rows are only ever appended; they are removed solely by the cascade
// when the owning account is deleted.
type Transaction struct {
	ID          int64           `json:"id" db:"id"`
	AccountID   int64           `json:"account_id" db:"account_id"`
	Reference   string          `json:"reference" db:"reference"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	Type        string          `json:"type" db:"type"`
	IPAddress   string          `json:"ip_address" db:"ip_address"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}
